package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/api/responses"
	"github.com/angelmondragon/starter-billing/api/validators"
	"github.com/angelmondragon/starter-billing/internal/payments"
	"github.com/angelmondragon/starter-billing/internal/plans"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/pagination"
)

const (
	maxExternalIDLength = 128
	maxAddressLength    = 256
)

type subscriptionFinder interface {
	FindByOrganization(ctx context.Context, organizationID string) (*models.Subscription, error)
}

type paymentCreateRequest struct {
	ExternalID     string  `json:"external_id" validate:"required,max=128"`
	BillingPeriod  string  `json:"billing_period" validate:"required,billing_period"`
	Amount         string  `json:"amount,omitempty" validate:"omitempty,positive_amount"`
	Currency       string  `json:"currency,omitempty" validate:"omitempty,min=3,max=10"`
	PayAddress     string  `json:"pay_address" validate:"max=256"`
	Status         string  `json:"status,omitempty" validate:"omitempty,payment_status"`
	IPNCallbackURL *string `json:"ipn_callback_url,omitempty" validate:"omitempty,url"`
}

type paymentUpdateRequest struct {
	Status       string  `json:"status" validate:"required,payment_status"`
	ActuallyPaid *string `json:"actually_paid,omitempty" validate:"omitempty,numeric"`
}

type paymentResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID string     `json:"organization_id"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	ExternalID     string     `json:"external_id"`
	BillingPeriod  string     `json:"billing_period"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	PayAddress     string     `json:"pay_address"`
	Status         string     `json:"status"`
	ActuallyPaid   *string    `json:"actually_paid,omitempty"`
	IPNCallbackURL *string    `json:"ipn_callback_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type paymentListResponse struct {
	Payments []paymentResponse `json:"payments"`
	Cursor   string            `json:"cursor,omitempty"`
}

type paymentUpdateResponse struct {
	Payment    paymentResponse `json:"payment"`
	FromStatus string          `json:"from_status"`
	Settled    bool            `json:"settled"`
}

// PaymentsList pages through the active organization's ledger, newest first.
func PaymentsList(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListByOrganization(ctx, middleware.OrganizationIDFromContext(ctx), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := paymentListResponse{
			Payments: make([]paymentResponse, len(result.Items)),
			Cursor:   result.NextCursor,
		}
		for i := range result.Items {
			payload.Payments[i] = toPaymentResponse(&result.Items[i])
		}
		responses.WriteSuccess(w, payload)
	}
}

// PaymentDetail returns one payment of the active organization. Payments of other
// organizations are reported as not found.
func PaymentDetail(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payment, err := svc.FindByIDAndOrganization(ctx, paymentID, middleware.OrganizationIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(payment))
	}
}

// PaymentCreate records a payment opened at the gateway by the checkout flow and links
// it to the organization's subscription when one exists. Amount and currency come from
// the plan catalog; a client-sent amount or currency must match the plan.
func PaymentCreate(svc payments.Service, subs subscriptionFinder, catalog *plans.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || subs == nil || catalog == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload paymentCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		period := enums.BillingPeriod(payload.BillingPeriod)
		plan, ok := catalog.Find(period)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no plan for billing period").
				WithDetails(map[string]any{"billing_period": payload.BillingPeriod}))
			return
		}
		if err := matchPlanPrice(plan, payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		organizationID := middleware.OrganizationIDFromContext(ctx)
		input := payments.CreateInput{
			OrganizationID: organizationID,
			ExternalID:     validators.SanitizeString(payload.ExternalID, maxExternalIDLength),
			BillingPeriod:  period,
			Amount:         plan.Amount,
			Currency:       plan.Currency.String(),
			PayAddress:     validators.SanitizeString(payload.PayAddress, maxAddressLength),
			Status:         enums.PaymentStatus(payload.Status),
			IPNCallbackURL: payload.IPNCallbackURL,
		}

		sub, err := subs.FindByOrganization(ctx, organizationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sub != nil {
			input.SubscriptionID = &sub.ID
		}

		payment, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResponse(payment))
	}
}

func matchPlanPrice(plan plans.Plan, payload paymentCreateRequest) error {
	details := map[string]any{
		"billing_period": plan.BillingPeriod.String(),
		"amount":         plan.Amount.String(),
		"currency":       plan.Currency.String(),
	}
	if raw := strings.TrimSpace(payload.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.Equal(plan.Amount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the plan price").WithDetails(details)
		}
	}
	if currency := strings.TrimSpace(payload.Currency); currency != "" && !strings.EqualFold(currency, plan.Currency.String()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency does not match the plan").WithDetails(details)
	}
	return nil
}

// AdminPaymentUpdate applies a manual status correction to a ledger entry.
func AdminPaymentUpdate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload paymentUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := payments.UpdateInput{Status: enums.PaymentStatus(payload.Status)}
		if payload.ActuallyPaid != nil {
			paid, parseErr := decimal.NewFromString(strings.TrimSpace(*payload.ActuallyPaid))
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid actually_paid"))
				return
			}
			input.ActuallyPaid = &paid
		}

		transition, err := svc.Update(ctx, paymentID, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentUpdateResponse{
			Payment:    toPaymentResponse(transition.Payment),
			FromStatus: transition.From.String(),
			Settled:    transition.Settled(),
		})
	}
}

// AdminPaymentByExternalID looks a payment up by the gateway's id.
func AdminPaymentByExternalID(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		payment, err := svc.FindByExternalID(ctx, chi.URLParam(r, "externalId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if payment == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"))
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(payment))
	}
}

func parsePaymentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "paymentId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return id, nil
}

func toPaymentResponse(p *models.Payment) paymentResponse {
	resp := paymentResponse{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		SubscriptionID: p.SubscriptionID,
		ExternalID:     p.ExternalID,
		BillingPeriod:  p.BillingPeriod.String(),
		Amount:         p.Amount.String(),
		Currency:       p.Currency,
		PayAddress:     p.PayAddress,
		Status:         p.Status.String(),
		IPNCallbackURL: p.IPNCallbackURL,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
	if p.ActuallyPaid != nil {
		paid := p.ActuallyPaid.String()
		resp.ActuallyPaid = &paid
	}
	return resp
}
