package enums

import "fmt"

// UIBadge is the status chip rendered next to an organization's current plan.
type UIBadge string

const (
	UIBadgeTrial     UIBadge = "trial"
	UIBadgeActive    UIBadge = "active"
	UIBadgeExpired   UIBadge = "expired"
	UIBadgeCancelled UIBadge = "cancelled"
)

var validUIBadges = []UIBadge{
	UIBadgeTrial,
	UIBadgeActive,
	UIBadgeExpired,
	UIBadgeCancelled,
}

// String implements fmt.Stringer.
func (u UIBadge) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UIBadge.
func (u UIBadge) IsValid() bool {
	for _, candidate := range validUIBadges {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUIBadge converts raw input into a UIBadge.
func ParseUIBadge(value string) (UIBadge, error) {
	for _, candidate := range validUIBadges {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ui badge %q", value)
}
