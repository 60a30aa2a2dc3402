package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v82"

	"github.com/angelmondragon/starter-billing/internal/portal"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

type portalCache interface {
	Invalidate(ctx context.Context, referenceID string) error
}

type ServiceParams struct {
	Portal portalCache
	Logger *logger.Logger
}

// Service keeps cached portal answers fresh by dropping them whenever Stripe
// reports a change to a subscription tagged with a reference id.
type Service struct {
	portal portalCache
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Portal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "portal cache required")
	}
	return &Service{
		portal: params.Portal,
		logg:   params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeCustomerSubscriptionPaused,
		stripe.EventTypeCustomerSubscriptionResumed:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		return s.invalidate(ctx, &stripeSub)
	default:
		return nil
	}
}

func (s *Service) invalidate(ctx context.Context, stripeSub *stripe.Subscription) error {
	referenceID := strings.TrimSpace(stripeSub.Metadata[portal.ReferenceMetadataKey])
	if referenceID == "" {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_subscription_id", stripeSub.ID), "stripe subscription has no reference id")
		}
		return nil
	}
	if err := s.portal.Invalidate(ctx, referenceID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate portal cache")
	}
	if s.logg != nil {
		ctx = s.logg.WithOrganizationID(ctx, referenceID)
		s.logg.Info(s.logg.WithField(ctx, "stripe_subscription_id", stripeSub.ID), "portal cache invalidated")
	}
	return nil
}
