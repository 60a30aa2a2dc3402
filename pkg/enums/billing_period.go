package enums

import (
	"fmt"
	"time"
)

// BillingPeriod is the renewal cadence of a paid subscription.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

const day = 24 * time.Hour

var validBillingPeriods = []BillingPeriod{
	BillingPeriodMonthly,
	BillingPeriodYearly,
}

// String implements fmt.Stringer.
func (b BillingPeriod) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingPeriod.
func (b BillingPeriod) IsValid() bool {
	for _, candidate := range validBillingPeriods {
		if candidate == b {
			return true
		}
	}
	return false
}

// Length returns the fixed duration of one period. Calendar months and years are
// approximated as 30 and 365 days.
func (b BillingPeriod) Length() time.Duration {
	switch b {
	case BillingPeriodYearly:
		return 365 * day
	case BillingPeriodMonthly:
		return 30 * day
	default:
		return 0
	}
}

// ParseBillingPeriod converts raw input into a BillingPeriod.
func ParseBillingPeriod(value string) (BillingPeriod, error) {
	for _, candidate := range validBillingPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing period %q", value)
}
