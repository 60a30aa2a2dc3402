package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/starter-billing/pkg/db"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultTrialLength applies when no trial length is configured.
	DefaultTrialLength = 7 * day

	duplicateSubscriptionMessage = "subscription already exists for this organization"
	uniqueOrganizationConstraint = "subscriptions_organization_id_key"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the subscription lifecycle surface.
type Service interface {
	WithTx(tx *gorm.DB) Service
	FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error)
	CreateTrial(ctx context.Context, organizationID string) (*models.Subscription, error)
	Activate(ctx context.Context, organizationID string, period enums.BillingPeriod) (*models.Subscription, error)
	Extend(ctx context.Context, organizationID string, period enums.BillingPeriod) (*models.Subscription, error)
	Cancel(ctx context.Context, organizationID string) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, subscriptionID uuid.UUID, input UpdateStatusInput) (*models.Subscription, error)
}

// UpdateStatusInput carries an administrative correction. Nil dates are left untouched.
type UpdateStatusInput struct {
	Status    enums.SubscriptionStatus
	StartDate *time.Time
	EndDate   *time.Time
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	TrialLength       time.Duration
	Now               func() time.Time
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
}

type service struct {
	repo        Repository
	txRunner    txRunner
	trialLength time.Duration
	now         func() time.Time
	metrics     *metrics.BillingMetrics
	logg        *logger.Logger
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.TrialLength < 0 {
		return nil, fmt.Errorf("trial length must not be negative")
	}
	trialLength := params.TrialLength
	if trialLength == 0 {
		trialLength = DefaultTrialLength
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		txRunner:    params.TransactionRunner,
		trialLength: trialLength,
		now:         now,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// WithTx binds the service to a transaction owned by the caller.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	clone.txRunner = boundTx{tx: tx}
	return &clone
}

type boundTx struct {
	tx *gorm.DB
}

func (b boundTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(b.tx)
}

func (s *service) FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error) {
	organizationID, err := normalizeOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByOrganization(ctx, organizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// CreateTrial starts the trial for a freshly created organization. The unique index on
// organization_id turns a concurrent second insert into the same duplicate error.
func (s *service) CreateTrial(ctx context.Context, organizationID string) (sub *models.Subscription, err error) {
	defer func() { s.observe(ctx, "create_trial", organizationID, err) }()

	organizationID, err = normalizeOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, findErr := repo.FindByOrganization(ctx, organizationID)
		if findErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load subscription")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, duplicateSubscriptionMessage)
		}

		now := s.now()
		trialEndsAt := now.Add(s.trialLength)
		period := enums.BillingPeriodMonthly
		candidate := &models.Subscription{
			ID:             uuid.New(),
			OrganizationID: organizationID,
			Status:         enums.SubscriptionStatusTrial,
			BillingPeriod:  &period,
			TrialEndsAt:    &trialEndsAt,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if createErr := repo.Create(ctx, candidate); createErr != nil {
			if db.IsUniqueViolation(createErr, uniqueOrganizationConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, duplicateSubscriptionMessage)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create subscription")
		}
		sub = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Activate starts a fresh paid period from now. Cancelled subscriptions are resurrected.
func (s *service) Activate(ctx context.Context, organizationID string, period enums.BillingPeriod) (sub *models.Subscription, err error) {
	defer func() { s.observe(ctx, "activate", organizationID, err) }()

	if err = validatePeriod(period); err != nil {
		return nil, err
	}
	return s.mutateByOrganization(ctx, organizationID, func(current *models.Subscription, now time.Time) {
		start := now
		end := now.Add(period.Length())
		current.Status = enums.SubscriptionStatusActive
		current.BillingPeriod = &period
		current.StartDate = &start
		current.EndDate = &end
	})
}

// Extend adds one period to the subscription. Time left on an unexpired period is kept;
// an expired or missing end date restarts from now. StartDate is not touched.
func (s *service) Extend(ctx context.Context, organizationID string, period enums.BillingPeriod) (sub *models.Subscription, err error) {
	defer func() { s.observe(ctx, "extend", organizationID, err) }()

	if err = validatePeriod(period); err != nil {
		return nil, err
	}
	return s.mutateByOrganization(ctx, organizationID, func(current *models.Subscription, now time.Time) {
		base := now
		if current.EndDate != nil && current.EndDate.After(now) {
			base = *current.EndDate
		}
		end := base.Add(period.Length())
		current.Status = enums.SubscriptionStatusActive
		current.BillingPeriod = &period
		current.EndDate = &end
	})
}

func (s *service) Cancel(ctx context.Context, organizationID string) (sub *models.Subscription, err error) {
	defer func() { s.observe(ctx, "cancel", organizationID, err) }()

	return s.mutateByOrganization(ctx, organizationID, func(current *models.Subscription, _ time.Time) {
		current.Status = enums.SubscriptionStatusCancelled
	})
}

// UpdateStatus is the administrative escape hatch. It performs no transition
// validation and is the only writer of the inactive and expired statuses.
func (s *service) UpdateStatus(ctx context.Context, subscriptionID uuid.UUID, input UpdateStatusInput) (sub *models.Subscription, err error) {
	defer func() { s.observe(ctx, "update_status", "", err) }()

	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, findErr := repo.FindByID(ctx, subscriptionID)
		if findErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load subscription")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}

		now := s.now()
		current.Status = input.Status
		if input.Status == enums.SubscriptionStatusTrial && current.TrialEndsAt == nil {
			trialEndsAt := now.Add(s.trialLength)
			current.TrialEndsAt = &trialEndsAt
		}
		if input.StartDate != nil {
			start := input.StartDate.UTC()
			current.StartDate = &start
		}
		if input.EndDate != nil {
			end := input.EndDate.UTC()
			current.EndDate = &end
		}
		if saveErr := s.save(ctx, repo, current, now); saveErr != nil {
			return saveErr
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) mutateByOrganization(ctx context.Context, organizationID string, apply func(current *models.Subscription, now time.Time)) (*models.Subscription, error) {
	organizationID, err := normalizeOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}

	var sub *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, findErr := repo.FindByOrganization(ctx, organizationID)
		if findErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load subscription")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}

		now := s.now()
		apply(current, now)
		if saveErr := s.save(ctx, repo, current, now); saveErr != nil {
			return saveErr
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// save writes current with a compare-and-swap on its loaded version.
func (s *service) save(ctx context.Context, repo Repository, current *models.Subscription, now time.Time) error {
	expected := current.Version
	current.Version = expected + 1
	current.UpdatedAt = now

	ok, err := repo.UpdateIfVersion(ctx, current, expected)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription was modified concurrently").
			WithDetails(map[string]any{"subscription_id": current.ID.String()})
	}
	return nil
}

func (s *service) observe(ctx context.Context, operation, organizationID string, err error) {
	s.metrics.ObserveLifecycle(operation, err)
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithField(ctx, "operation", operation)
	if organizationID != "" {
		logCtx = s.logg.WithOrganizationID(logCtx, organizationID)
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
			s.logg.Error(logCtx, "subscription mutation failed", err)
		} else {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "subscription mutation rejected")
		}
		return
	}
	s.logg.Info(logCtx, "subscription mutated")
}

func normalizeOrganizationID(organizationID string) (string, error) {
	trimmed := strings.TrimSpace(organizationID)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	return trimmed, nil
}

func validatePeriod(period enums.BillingPeriod) error {
	if !period.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "billing_period must be monthly or yearly")
	}
	return nil
}
