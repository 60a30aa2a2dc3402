package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubReader struct {
	sub   *models.Subscription
	err   error
	calls int
}

func (r *stubReader) FindByOrganization(context.Context, string) (*models.Subscription, error) {
	r.calls++
	return r.sub, r.err
}

type stubPortal struct {
	active bool
	err    error
	calls  int
}

func (p *stubPortal) HasActiveSubscription(context.Context, string) (bool, error) {
	p.calls++
	return p.active, p.err
}

func trial(endsAt time.Time) *models.Subscription {
	return &models.Subscription{OrganizationID: "org-1", Status: enums.SubscriptionStatusTrial, TrialEndsAt: &endsAt}
}

func newLocal(t *testing.T, reader *stubReader, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Subscriptions: reader, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return svc
}

func TestHasValidAccessLocal(t *testing.T) {
	ctx := context.Background()

	access, err := newLocal(t, &stubReader{}, t0).HasValidAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonNoSubscription, access.Reason)

	access, err = newLocal(t, &stubReader{sub: trial(t0.Add(7 * 24 * time.Hour))}, t0.Add(6*24*time.Hour)).HasValidAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrial, access.Reason)
	require.NotNil(t, access.DaysRemaining)

	access, err = newLocal(t, &stubReader{sub: trial(t0.Add(7 * 24 * time.Hour))}, t0.Add(8*24*time.Hour)).HasValidAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrialExpired, access.Reason)
}

func TestHasValidAccessWithoutOrganization(t *testing.T) {
	reader := &stubReader{}
	access, err := newLocal(t, reader, t0).HasValidAccess(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, enums.AccessReasonNoSubscription, access.Reason)
	assert.Zero(t, reader.calls)
}

func TestHasValidAccessPropagatesStorageErrors(t *testing.T) {
	_, err := newLocal(t, &stubReader{err: errors.New("db down")}, t0).HasValidAccess(context.Background(), "org-1")
	require.Error(t, err)
}

func TestHasValidAccessPortalMode(t *testing.T) {
	ctx := context.Background()
	expired := trial(t0.Add(-time.Hour))

	portal := &stubPortal{active: true}
	svc, err := NewService(ServiceParams{
		Subscriptions: &stubReader{sub: expired},
		Mode:          enums.BillingModePortal,
		Portal:        portal,
		Now:           func() time.Time { return t0 },
	})
	require.NoError(t, err)

	access, err := svc.HasValidAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonActive, access.Reason)
	assert.Equal(t, 1, portal.calls)

	portal.active = false
	access, err = svc.HasValidAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrialExpired, access.Reason)
}

func TestHasValidAccessPortalUpgradesTrialReason(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Subscriptions: &stubReader{sub: trial(t0.Add(24 * time.Hour))},
		Mode:          enums.BillingModePortal,
		Portal:        &stubPortal{active: true},
		Now:           func() time.Time { return t0 },
	})
	require.NoError(t, err)

	access, err := svc.HasValidAccess(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, enums.AccessReasonActive, access.Reason)
	assert.Nil(t, access.DaysRemaining)
}

func TestHasValidAccessPortalFailureDegrades(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Subscriptions: &stubReader{sub: trial(t0.Add(24 * time.Hour))},
		Mode:          enums.BillingModePortal,
		Portal:        &stubPortal{err: errors.New("stripe unavailable")},
		Now:           func() time.Time { return t0 },
	})
	require.NoError(t, err)

	access, err := svc.HasValidAccess(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, access.HasAccess)
	assert.Equal(t, enums.AccessReasonTrial, access.Reason)
}

func TestLocalModeIgnoresPortal(t *testing.T) {
	portal := &stubPortal{active: true}
	svc, err := NewService(ServiceParams{Subscriptions: &stubReader{}, Mode: enums.BillingModeLocal, Portal: portal})
	require.NoError(t, err)

	access, err := svc.HasValidAccess(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, access.HasAccess)
	assert.Zero(t, portal.calls)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Subscriptions: &stubReader{}, Mode: enums.BillingModePortal})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Subscriptions: &stubReader{}, Mode: "hybrid"})
	require.Error(t, err)
}

func TestGetByOrganization(t *testing.T) {
	ctx := context.Background()

	view, err := newLocal(t, &stubReader{}, t0).GetByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, view)

	view, err = newLocal(t, &stubReader{}, t0).GetByOrganization(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, view)

	view, err = newLocal(t, &stubReader{sub: trial(t0.Add(3 * 24 * time.Hour))}, t0).GetByOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, 3, view.TrialDaysRemaining)
	assert.False(t, view.IsTrialExpired)
	assert.Equal(t, enums.UIBadgeTrial, view.Badge)
}
