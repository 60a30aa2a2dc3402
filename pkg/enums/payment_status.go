package enums

import "fmt"

// PaymentStatus tracks a gateway payment from creation to settlement.
type PaymentStatus string

const (
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusExpired       PaymentStatus = "expired"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusWaiting,
	PaymentStatusConfirming,
	PaymentStatusConfirmed,
	PaymentStatusPartiallyPaid,
	PaymentStatusSending,
	PaymentStatusFinished,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusExpired,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusFinished, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
