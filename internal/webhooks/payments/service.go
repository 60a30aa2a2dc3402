package paymentwebhook

import (
	"context"

	"github.com/angelmondragon/starter-billing/internal/payments"
	"github.com/angelmondragon/starter-billing/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
	"gorm.io/gorm"
)

// Result classifies how a notification was handled.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultSettled   Result = "settled"
	ResultDuplicate Result = "duplicate"
	ResultUnknown   Result = "unknown_payment"
	ResultStale     Result = "stale"
	ResultUnderpaid Result = "underpaid"
	ResultRejected  Result = "rejected"
	ResultFailed    Result = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Payments          payments.Service
	Subscriptions     subscriptions.Service
	TransactionRunner txRunner
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
}

type Service struct {
	payments      payments.Service
	subscriptions subscriptions.Service
	txRunner      txRunner
	metrics       *metrics.BillingMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		payments:      params.Payments,
		subscriptions: params.Subscriptions,
		txRunner:      params.TransactionRunner,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// Observe records the outcome of one delivery.
func (s *Service) Observe(result Result) {
	s.metrics.ObserveWebhook(string(result))
}

// HandleNotification updates the ledger entry named by n. When the update moves the
// payment into finished, the owning organization's subscription is extended by the
// payment's billing period in the same transaction, provided the invoiced price covers
// the ledger amount in the ledger currency. An underpaid settlement is recorded but
// grants nothing. Unknown payments and transitions the ledger refuses are acknowledged
// without changes so the gateway stops retrying.
func (s *Service) HandleNotification(ctx context.Context, n *Notification) (Result, error) {
	if n == nil {
		return ResultRejected, pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	status, err := n.Status()
	if err != nil {
		return ResultRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
	}

	ctx = s.withFields(ctx, map[string]any{
		"external_id":    n.ExternalID(),
		"payment_status": status.String(),
	})

	payment, err := s.payments.FindByExternalID(ctx, n.ExternalID())
	if err != nil {
		return ResultFailed, err
	}
	if payment == nil {
		s.warn(ctx, "ipn for unknown payment ignored")
		return ResultUnknown, nil
	}
	if s.logg != nil {
		ctx = s.logg.WithOrganizationID(ctx, payment.OrganizationID)
	}

	result := ResultApplied
	stale := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		transition, updateErr := s.payments.WithTx(tx).Update(ctx, payment.ID, payments.UpdateInput{
			Status:       status,
			ActuallyPaid: n.ActuallyPaid,
		})
		if updateErr != nil {
			stale = pkgerrors.HasCode(updateErr, pkgerrors.CodeStateConflict)
			return updateErr
		}
		if !transition.Settled() {
			return nil
		}
		if !n.Covers(payment.Amount, payment.Currency) {
			result = ResultUnderpaid
			return nil
		}
		if _, extendErr := s.subscriptions.WithTx(tx).Extend(ctx, payment.OrganizationID, payment.BillingPeriod); extendErr != nil {
			return extendErr
		}
		result = ResultSettled
		return nil
	})
	if err != nil {
		if stale {
			s.warn(ctx, "stale ipn ignored")
			return ResultStale, nil
		}
		if s.logg != nil {
			s.logg.Error(ctx, "ipn processing failed", err)
		}
		return ResultFailed, err
	}

	if result == ResultUnderpaid {
		s.warn(s.withFields(ctx, map[string]any{
			"expected_amount":   payment.Amount.String(),
			"expected_currency": payment.Currency,
			"price_currency":    n.PriceCurrency,
		}), "settlement does not cover the ledger amount; subscription not extended")
		return result, nil
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "result", string(result)), "ipn processed")
	}
	return result, nil
}

func (s *Service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
