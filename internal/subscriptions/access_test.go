package subscriptions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
)

func trialSubscription(endsAt time.Time) *models.Subscription {
	period := enums.BillingPeriodMonthly
	return &models.Subscription{
		ID:             uuid.New(),
		OrganizationID: "org-1",
		Status:         enums.SubscriptionStatusTrial,
		BillingPeriod:  &period,
		TrialEndsAt:    &endsAt,
		Version:        1,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
}

func activeSubscription(endDate *time.Time) *models.Subscription {
	period := enums.BillingPeriodMonthly
	start := t0
	return &models.Subscription{
		ID:             uuid.New(),
		OrganizationID: "org-1",
		Status:         enums.SubscriptionStatusActive,
		BillingPeriod:  &period,
		StartDate:      &start,
		EndDate:        endDate,
		Version:        2,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
}

func TestEvaluateNoSubscription(t *testing.T) {
	access := Evaluate(nil, t0)
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonNoSubscription, access.Reason)
	assert.Nil(t, access.DaysRemaining)
}

func TestEvaluateTrialWindow(t *testing.T) {
	sub := trialSubscription(t0.Add(7 * day))

	access := Evaluate(sub, t0.Add(6*day))
	require.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrial, access.Reason)
	require.NotNil(t, access.DaysRemaining)
	assert.Contains(t, []int{1, 2}, *access.DaysRemaining)

	access = Evaluate(sub, t0.Add(6*day+time.Hour))
	require.NotNil(t, access.DaysRemaining)
	assert.Equal(t, 1, *access.DaysRemaining)

	access = Evaluate(sub, t0)
	assert.Equal(t, 7, *access.DaysRemaining)

	access = Evaluate(sub, t0.Add(7*day))
	assert.True(t, access.HasAccess)
	assert.Equal(t, 0, *access.DaysRemaining)

	access = Evaluate(sub, t0.Add(8*day))
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrialExpired, access.Reason)
	assert.Nil(t, access.DaysRemaining)
}

func TestEvaluateTrialWithoutEndDate(t *testing.T) {
	sub := trialSubscription(t0)
	sub.TrialEndsAt = nil

	access := Evaluate(sub, t0.Add(100*day))
	assert.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrial, access.Reason)
	assert.Nil(t, access.DaysRemaining)
}

func TestEvaluateActive(t *testing.T) {
	end := t0.Add(30 * day)
	sub := activeSubscription(&end)

	access := Evaluate(sub, t0.Add(29*day))
	assert.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonActive, access.Reason)
	assert.Nil(t, access.DaysRemaining)

	access = Evaluate(sub, t0.Add(31*day))
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonSubscriptionExpired, access.Reason)

	open := activeSubscription(nil)
	assert.True(t, Evaluate(open, t0.Add(1000*day)).HasAccess)
}

func TestEvaluateReportsOtherStatusesVerbatim(t *testing.T) {
	for _, status := range []enums.SubscriptionStatus{
		enums.SubscriptionStatusCancelled,
		enums.SubscriptionStatusInactive,
		enums.SubscriptionStatusExpired,
	} {
		end := t0.Add(30 * day)
		sub := activeSubscription(&end)
		sub.Status = status

		access := Evaluate(sub, t0)
		assert.False(t, access.HasAccess, status)
		assert.Equal(t, enums.AccessReason(status), access.Reason)
	}
}

func TestEvaluateIsRecomputedPerCall(t *testing.T) {
	sub := trialSubscription(t0.Add(7 * day))
	before := *sub

	Evaluate(sub, t0.Add(30*day))
	assert.Equal(t, before, *sub)
}

func TestDescribeTrial(t *testing.T) {
	sub := trialSubscription(t0.Add(7 * day))

	view := Describe(sub, t0.Add(36*time.Hour))
	require.NotNil(t, view)
	assert.Equal(t, sub.ID, view.ID)
	assert.False(t, view.IsTrialExpired)
	assert.Equal(t, 6, view.TrialDaysRemaining)
	assert.False(t, view.IsExpired)
	assert.Equal(t, 6, view.DaysRemaining)
	assert.Equal(t, enums.UIBadgeTrial, view.Badge)

	view = Describe(sub, t0.Add(8*day))
	assert.True(t, view.IsTrialExpired)
	assert.Equal(t, 0, view.TrialDaysRemaining)
	assert.True(t, view.IsExpired)
	assert.Equal(t, enums.UIBadgeExpired, view.Badge)
}

func TestDescribeActive(t *testing.T) {
	end := t0.Add(30 * day)
	sub := activeSubscription(&end)

	view := Describe(sub, t0.Add(20*day))
	assert.False(t, view.IsExpired)
	assert.Equal(t, 10, view.DaysRemaining)
	assert.True(t, view.IsTrialExpired)
	assert.Equal(t, enums.UIBadgeActive, view.Badge)

	view = Describe(sub, t0.Add(31*day))
	assert.True(t, view.IsExpired)
	assert.Equal(t, 0, view.DaysRemaining)
	assert.Equal(t, enums.UIBadgeExpired, view.Badge)
}

func TestDescribeOtherStatuses(t *testing.T) {
	assert.Nil(t, Describe(nil, t0))

	end := t0.Add(30 * day)
	sub := activeSubscription(&end)
	sub.Status = enums.SubscriptionStatusCancelled

	view := Describe(sub, t0)
	assert.True(t, view.IsExpired)
	assert.True(t, view.IsTrialExpired)
	assert.Equal(t, 0, view.DaysRemaining)
	assert.Equal(t, enums.UIBadgeCancelled, view.Badge)

	sub.Status = enums.SubscriptionStatusInactive
	assert.Equal(t, enums.UIBadgeExpired, Describe(sub, t0).Badge)
}
