package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
)

type subscriptionReader interface {
	FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error)
}

// PortalChecker reports whether a third-party billing portal holds a paid
// subscription for the reference id.
type PortalChecker interface {
	HasActiveSubscription(ctx context.Context, referenceID string) (bool, error)
}

// Service answers entitlement questions for organizations.
type Service interface {
	HasValidAccess(ctx context.Context, organizationID string) (subscriptions.Access, error)
	GetByOrganization(ctx context.Context, organizationID string) (*subscriptions.View, error)
}

// ServiceParams groups dependencies for the entitlement service.
type ServiceParams struct {
	Subscriptions subscriptionReader
	Mode          enums.BillingMode
	Portal        PortalChecker
	Now           func() time.Time
	Metrics       *metrics.BillingMetrics
	Logger        *logger.Logger
}

type service struct {
	subs    subscriptionReader
	portal  PortalChecker
	now     func() time.Time
	metrics *metrics.BillingMetrics
	logg    *logger.Logger
}

// NewService builds an entitlement service. Portal mode requires a PortalChecker.
func NewService(params ServiceParams) (Service, error) {
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription reader required")
	}
	mode := params.Mode
	if mode == "" {
		mode = enums.BillingModeLocal
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid billing mode %q", mode)
	}
	var portal PortalChecker
	if mode == enums.BillingModePortal {
		if params.Portal == nil {
			return nil, fmt.Errorf("portal checker required in portal mode")
		}
		portal = params.Portal
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		subs:    params.Subscriptions,
		portal:  portal,
		now:     now,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// HasValidAccess evaluates the stored subscription and, in portal mode, ORs the
// result with the portal's answer. A paid portal subscription reports as active.
// Portal failures fall back to the local decision.
func (s *service) HasValidAccess(ctx context.Context, organizationID string) (subscriptions.Access, error) {
	if organizationID == "" {
		access := subscriptions.NoSubscription()
		s.metrics.ObserveDecision(access.Reason.String(), access.HasAccess)
		return access, nil
	}

	sub, err := s.subs.FindByOrganization(ctx, organizationID)
	if err != nil {
		return subscriptions.Access{}, err
	}
	access := subscriptions.Evaluate(sub, s.now())

	if access.Reason != enums.AccessReasonActive && s.portal != nil {
		active, portalErr := s.portal.HasActiveSubscription(ctx, organizationID)
		switch {
		case portalErr != nil:
			if s.logg != nil {
				logCtx := s.logg.WithOrganizationID(ctx, organizationID)
				s.logg.Warn(s.logg.WithField(logCtx, "error", portalErr.Error()), "portal lookup failed; using local decision")
			}
		case active:
			access = subscriptions.Access{HasAccess: true, Reason: enums.AccessReasonActive}
		}
	}

	s.metrics.ObserveDecision(access.Reason.String(), access.HasAccess)
	return access, nil
}

// GetByOrganization returns the stored subscription with derived expiry fields, or
// nil when the organization has none.
func (s *service) GetByOrganization(ctx context.Context, organizationID string) (*subscriptions.View, error) {
	if organizationID == "" {
		return nil, nil
	}
	sub, err := s.subs.FindByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return subscriptions.Describe(sub, s.now()), nil
}
