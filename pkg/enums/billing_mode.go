package enums

import (
	"fmt"
	"strings"
)

// BillingMode selects which system is authoritative for paid state.
type BillingMode string

const (
	// BillingModeLocal treats the payment ledger and subscription store as the only source of truth.
	BillingModeLocal BillingMode = "local"
	// BillingModePortal consults a third-party billing portal for paid state; the local
	// store only tracks the trial.
	BillingModePortal BillingMode = "portal"
)

// String implements fmt.Stringer.
func (b BillingMode) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingMode.
func (b BillingMode) IsValid() bool {
	return b == BillingModeLocal || b == BillingModePortal
}

// ParseBillingMode converts raw input into a BillingMode.
func ParseBillingMode(value string) (BillingMode, error) {
	mode := BillingMode(strings.ToLower(strings.TrimSpace(value)))
	if mode == "" {
		return BillingModeLocal, nil
	}
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid billing mode %q", value)
	}
	return mode, nil
}
