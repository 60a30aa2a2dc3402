package paymentwebhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/starter-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
)

// Notification is the subset of the gateway's IPN body the ledger consumes.
type Notification struct {
	PaymentID     gatewayID        `json:"payment_id"`
	PaymentStatus string           `json:"payment_status"`
	PayAddress    string           `json:"pay_address"`
	PriceAmount   *decimal.Decimal `json:"price_amount"`
	PriceCurrency string           `json:"price_currency"`
	ActuallyPaid  *decimal.Decimal `json:"actually_paid"`
	OrderID       string           `json:"order_id"`
}

// gatewayID accepts the payment id as either a JSON number or a string.
type gatewayID string

func (g *gatewayID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*g = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = gatewayID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("payment_id: %w", err)
	}
	*g = gatewayID(n.String())
	return nil
}

// ParseNotification decodes and validates an IPN body.
func ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ipn payload")
	}
	if n.ExternalID() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_id is required")
	}
	if _, err := n.Status(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
	}
	return &n, nil
}

// ExternalID is the gateway's payment id as stored in the ledger.
func (n *Notification) ExternalID() string {
	return string(n.PaymentID)
}

// Status parses the reported payment status.
func (n *Notification) Status() (enums.PaymentStatus, error) {
	return enums.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(n.PaymentStatus)))
}

// Covers reports whether the invoiced price settles amount in currency. A
// notification without a price never covers.
func (n *Notification) Covers(amount decimal.Decimal, currency string) bool {
	if n.PriceAmount == nil {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(n.PriceCurrency), strings.TrimSpace(currency)) {
		return false
	}
	return n.PriceAmount.GreaterThanOrEqual(amount)
}

// EventID identifies one delivery. The gateway reports every status change of a
// payment separately, so the status and paid amount are part of the id.
func (n *Notification) EventID() string {
	paid := ""
	if n.ActuallyPaid != nil {
		paid = n.ActuallyPaid.String()
	}
	return fmt.Sprintf("%s:%s:%s", n.ExternalID(), strings.ToLower(strings.TrimSpace(n.PaymentStatus)), paid)
}
