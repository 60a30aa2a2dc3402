package payments

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
	"github.com/angelmondragon/starter-billing/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const uniqueExternalIDConstraint = "payments_external_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the payment ledger surface.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Create(ctx context.Context, input CreateInput) (*models.Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	FindByIDAndOrganization(ctx context.Context, paymentID uuid.UUID, organizationID string) (*models.Payment, error)
	ListByOrganization(ctx context.Context, organizationID string, params pagination.Params) (*ListResult, error)
	Update(ctx context.Context, paymentID uuid.UUID, input UpdateInput) (*Transition, error)
}

// CreateInput describes a payment opened at the gateway.
type CreateInput struct {
	OrganizationID string
	SubscriptionID *uuid.UUID
	ExternalID     string
	BillingPeriod  enums.BillingPeriod
	Amount         decimal.Decimal
	Currency       string
	PayAddress     string
	Status         enums.PaymentStatus
	IPNCallbackURL *string
}

// UpdateInput carries a gateway status report. A nil ActuallyPaid keeps the stored value.
type UpdateInput struct {
	Status       enums.PaymentStatus
	ActuallyPaid *decimal.Decimal
}

// Transition is the result of an update.
type Transition struct {
	Payment *models.Payment
	From    enums.PaymentStatus
}

// Settled reports whether this update moved the payment into finished.
func (t *Transition) Settled() bool {
	return t != nil && t.Payment != nil &&
		t.From != enums.PaymentStatusFinished &&
		t.Payment.Status == enums.PaymentStatusFinished
}

// ListResult is one page of an organization's payments, newest first.
type ListResult struct {
	Items      []models.Payment `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Now               func() time.Time
	Logger            *logger.Logger
}

type service struct {
	repo     Repository
	txRunner txRunner
	now      func() time.Time
	logg     *logger.Logger
}

// NewService builds a payment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		now:      now,
		logg:     params.Logger,
	}, nil
}

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

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payment, error) {
	payment, err := s.buildPayment(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, uniqueExternalIDConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already recorded").
				WithDetails(map[string]any{"external_id": payment.ExternalID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrganizationID(ctx, payment.OrganizationID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_id":  payment.ID.String(),
			"external_id": payment.ExternalID,
			"status":      payment.Status.String(),
		})
		s.logg.Info(logCtx, "payment recorded")
	}
	return payment, nil
}

func (s *service) buildPayment(input CreateInput) (*models.Payment, error) {
	organizationID := strings.TrimSpace(input.OrganizationID)
	if organizationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external_id is required")
	}
	if !input.BillingPeriod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing_period must be monthly or yearly")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	status := input.Status
	if status == "" {
		status = enums.PaymentStatusWaiting
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	now := s.now()
	return &models.Payment{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		SubscriptionID: input.SubscriptionID,
		ExternalID:     externalID,
		BillingPeriod:  input.BillingPeriod,
		Amount:         input.Amount,
		Currency:       currency,
		PayAddress:     strings.TrimSpace(input.PayAddress),
		Status:         status,
		IPNCallbackURL: input.IPNCallbackURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// FindByExternalID returns nil when the gateway id is unknown.
func (s *service) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external_id is required")
	}
	payment, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

// FindByIDAndOrganization scopes the lookup to one tenant. Another tenant's payment is
// reported as not found.
func (s *service) FindByIDAndOrganization(ctx context.Context, paymentID uuid.UUID, organizationID string) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil || payment.OrganizationID != strings.TrimSpace(organizationID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ListByOrganization(ctx context.Context, organizationID string, params pagination.Params) (*ListResult, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, next, err := s.repo.List(ctx, ListQuery{
		OrganizationID: organizationID,
		Limit:          params.Limit,
		Cursor:         cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}

	result := &ListResult{Items: items}
	if result.Items == nil {
		result.Items = []models.Payment{}
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Update applies a gateway status report. Re-applying the current status refreshes
// actually_paid; backward moves and moves out of a terminal status are rejected.
func (s *service) Update(ctx context.Context, paymentID uuid.UUID, input UpdateInput) (*Transition, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	var transition *Transition
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}

		from := payment.Status
		if !CanTransition(from, input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed").
				WithDetails(map[string]any{"from": from.String(), "to": input.Status.String()})
		}

		payment.Status = input.Status
		if input.ActuallyPaid != nil {
			paid := *input.ActuallyPaid
			payment.ActuallyPaid = &paid
		}
		payment.UpdatedAt = s.now()

		ok, err := repo.UpdateIfStatus(ctx, payment, from)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was modified concurrently")
		}
		transition = &Transition{Payment: payment, From: from}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrganizationID(ctx, transition.Payment.OrganizationID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_id": paymentID.String(),
			"from":       transition.From.String(),
			"to":         transition.Payment.Status.String(),
		})
		s.logg.Info(logCtx, "payment status updated")
	}
	return transition, nil
}
