package subscriptions

import (
	"math"
	"time"

	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/google/uuid"
)

const day = 24 * time.Hour

// Access is the entitlement decision for one organization at one instant.
type Access struct {
	HasAccess     bool               `json:"has_access"`
	Reason        enums.AccessReason `json:"reason"`
	DaysRemaining *int               `json:"days_remaining,omitempty"`
}

// NoSubscription is the decision for organizations without a row, and for callers
// without an organization.
func NoSubscription() Access {
	return Access{HasAccess: false, Reason: enums.AccessReasonNoSubscription}
}

// Evaluate derives access from the stored row and now. Expiry is never written back;
// a trial or paid period simply stops granting access once its boundary has passed.
func Evaluate(sub *models.Subscription, now time.Time) Access {
	if sub == nil {
		return NoSubscription()
	}

	switch sub.Status {
	case enums.SubscriptionStatusTrial:
		if sub.TrialEndsAt == nil {
			return Access{HasAccess: true, Reason: enums.AccessReasonTrial}
		}
		if now.After(*sub.TrialEndsAt) {
			return Access{HasAccess: false, Reason: enums.AccessReasonTrialExpired}
		}
		days := ceilDays(sub.TrialEndsAt.Sub(now))
		return Access{HasAccess: true, Reason: enums.AccessReasonTrial, DaysRemaining: &days}
	case enums.SubscriptionStatusActive:
		if sub.EndDate != nil && now.After(*sub.EndDate) {
			return Access{HasAccess: false, Reason: enums.AccessReasonSubscriptionExpired}
		}
		return Access{HasAccess: true, Reason: enums.AccessReasonActive}
	default:
		return Access{HasAccess: false, Reason: enums.AccessReasonFromStatus(sub.Status)}
	}
}

// View is the stored subscription plus the derived, never persisted, expiry fields.
type View struct {
	ID                 uuid.UUID                `json:"id"`
	OrganizationID     string                   `json:"organization_id"`
	Status             enums.SubscriptionStatus `json:"status"`
	BillingPeriod      *enums.BillingPeriod     `json:"billing_period,omitempty"`
	TrialEndsAt        *time.Time               `json:"trial_ends_at,omitempty"`
	StartDate          *time.Time               `json:"start_date,omitempty"`
	EndDate            *time.Time               `json:"end_date,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	IsExpired          bool                     `json:"is_expired"`
	DaysRemaining      int                      `json:"days_remaining"`
	IsTrialExpired     bool                     `json:"is_trial_expired"`
	TrialDaysRemaining int                      `json:"trial_days_remaining"`
	Badge              enums.UIBadge            `json:"badge"`
}

// Describe renders sub for display at now. It returns nil when sub is nil.
func Describe(sub *models.Subscription, now time.Time) *View {
	if sub == nil {
		return nil
	}

	view := &View{
		ID:                 sub.ID,
		OrganizationID:     sub.OrganizationID,
		Status:             sub.Status,
		BillingPeriod:      sub.BillingPeriod,
		TrialEndsAt:        sub.TrialEndsAt,
		StartDate:          sub.StartDate,
		EndDate:            sub.EndDate,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
		IsExpired:          true,
		DaysRemaining:      0,
		IsTrialExpired:     true,
		TrialDaysRemaining: 0,
		Badge:              enums.UIBadgeExpired,
	}

	switch sub.Status {
	case enums.SubscriptionStatusTrial:
		view.IsTrialExpired = false
		if sub.TrialEndsAt != nil {
			view.IsTrialExpired = now.After(*sub.TrialEndsAt)
			if !view.IsTrialExpired {
				view.TrialDaysRemaining = ceilDays(sub.TrialEndsAt.Sub(now))
			}
		}
		view.IsExpired = view.IsTrialExpired
		view.DaysRemaining = view.TrialDaysRemaining
		if !view.IsTrialExpired {
			view.Badge = enums.UIBadgeTrial
		}
	case enums.SubscriptionStatusActive:
		view.IsExpired = sub.EndDate != nil && now.After(*sub.EndDate)
		if sub.EndDate != nil && !view.IsExpired {
			view.DaysRemaining = ceilDays(sub.EndDate.Sub(now))
		}
		if !view.IsExpired {
			view.Badge = enums.UIBadgeActive
		}
	case enums.SubscriptionStatusCancelled:
		view.Badge = enums.UIBadgeCancelled
	}

	return view
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(day)))
}
