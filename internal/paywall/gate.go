package paywall

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// DefaultExemptPaths stay reachable without access so users can subscribe, finish
// onboarding and manage settings.
var DefaultExemptPaths = []string{"/subscription", "/onboarding", "/settings"}

// SubscribePath is where blocked users are sent.
const SubscribePath = "/subscription"

// Decision tells a client whether to render the paywall for a path.
type Decision struct {
	Path          string             `json:"path"`
	Blocked       bool               `json:"blocked"`
	Exempt        bool               `json:"exempt"`
	Reason        enums.AccessReason `json:"reason"`
	DaysRemaining *int               `json:"days_remaining,omitempty"`
	Title         string             `json:"title,omitempty"`
	Message       string             `json:"message,omitempty"`
	ActionPath    string             `json:"action_path,omitempty"`
}

// Gate decides which client paths sit behind the paywall.
type Gate struct {
	appName string
	exempt  []string
}

// NewGate builds a gate. An empty exempt list falls back to DefaultExemptPaths.
func NewGate(appName string, exemptPaths []string) *Gate {
	exempt := make([]string, 0, len(exemptPaths))
	for _, path := range exemptPaths {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			exempt = append(exempt, trimmed)
		}
	}
	if len(exempt) == 0 {
		exempt = append(exempt, DefaultExemptPaths...)
	}
	if strings.TrimSpace(appName) == "" {
		appName = "the app"
	}
	return &Gate{appName: appName, exempt: exempt}
}

// IsExempt reports whether path starts with one of the exempt prefixes.
func (g *Gate) IsExempt(path string) bool {
	for _, prefix := range g.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Decide combines an access decision with the requested path. Callers without an
// organization are never blocked; onboarding creates the organization first.
func (g *Gate) Decide(path string, hasOrganization bool, access subscriptions.Access) Decision {
	decision := Decision{
		Path:          path,
		Exempt:        g.IsExempt(path),
		Reason:        access.Reason,
		DaysRemaining: access.DaysRemaining,
	}
	if !hasOrganization || access.HasAccess || decision.Exempt {
		return decision
	}
	decision.Blocked = true
	decision.Title, decision.Message = g.Copy(access.Reason)
	decision.ActionPath = SubscribePath
	return decision
}

// Copy returns the paywall title and message for a denial reason.
func (g *Gate) Copy(reason enums.AccessReason) (string, string) {
	switch reason {
	case enums.AccessReasonTrialExpired:
		return "Trial Expired", fmt.Sprintf("Your free trial has ended. Subscribe to continue using %s.", g.appName)
	case enums.AccessReasonSubscriptionExpired:
		return "Subscription Required", "Your subscription has expired. Please renew to continue."
	default:
		return "Subscription Required", "You need an active subscription to access this feature."
	}
}
