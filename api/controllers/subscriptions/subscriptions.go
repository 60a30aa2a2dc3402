package subscriptions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/api/responses"
	"github.com/angelmondragon/starter-billing/api/validators"
	"github.com/angelmondragon/starter-billing/internal/paywall"
	subsvc "github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

// EntitlementReader is the read side used by the session-scoped endpoints.
type EntitlementReader interface {
	HasValidAccess(ctx context.Context, organizationID string) (subsvc.Access, error)
	GetByOrganization(ctx context.Context, organizationID string) (*subsvc.View, error)
}

type billingPeriodRequest struct {
	BillingPeriod string `json:"billing_period" validate:"required,billing_period"`
}

type updateStatusRequest struct {
	Status    string     `json:"status" validate:"required,subscription_status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

type trialResponse struct {
	ID uuid.UUID `json:"id"`
}

type subscriptionResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Status         string     `json:"status"`
	BillingPeriod  *string    `json:"billing_period,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SubscriptionFetch returns the active organization's subscription with its derived
// expiry fields, or null when there is no session, organization or row.
func SubscriptionFetch(svc EntitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		organizationID := middleware.OrganizationIDFromContext(r.Context())
		if organizationID == "" {
			responses.WriteSuccess(w, nil)
			return
		}

		view, err := svc.GetByOrganization(r.Context(), organizationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SubscriptionAccess reports whether the active organization may use paid features.
func SubscriptionAccess(svc EntitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		organizationID := middleware.OrganizationIDFromContext(r.Context())
		if organizationID == "" {
			responses.WriteSuccess(w, subsvc.NoSubscription())
			return
		}

		access, err := svc.HasValidAccess(r.Context(), organizationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, access)
	}
}

// Paywall tells the client whether to block the page at ?path=.
func Paywall(svc EntitlementReader, gate *paywall.Gate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paywall unavailable"))
			return
		}

		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" || !strings.HasPrefix(path, "/") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "path must be an absolute client path").
				WithDetails(map[string]any{"field": "path"}))
			return
		}

		organizationID := middleware.OrganizationIDFromContext(r.Context())
		access := subsvc.NoSubscription()
		if organizationID != "" {
			var err error
			access, err = svc.HasValidAccess(r.Context(), organizationID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		responses.WriteSuccess(w, gate.Decide(path, organizationID != "", access))
	}
}

// SubscriptionTrial starts the free trial. It is called once right after an
// organization is created.
func SubscriptionTrial(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		sub, err := svc.CreateTrial(r.Context(), middleware.OrganizationIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, trialResponse{ID: sub.ID})
	}
}

// AdminSubscriptionActivate starts a paid period for the organization in the path. Paid
// periods are otherwise granted only by a settled gateway payment.
func AdminSubscriptionActivate(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return periodMutation(svc, logg, func(ctx context.Context, organizationID string, period enums.BillingPeriod) (*models.Subscription, error) {
		return svc.Activate(ctx, organizationID, period)
	})
}

// AdminSubscriptionExtend adds one period to the organization in the path.
func AdminSubscriptionExtend(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return periodMutation(svc, logg, func(ctx context.Context, organizationID string, period enums.BillingPeriod) (*models.Subscription, error) {
		return svc.Extend(ctx, organizationID, period)
	})
}

// SubscriptionCancel cancels the active organization's subscription.
func SubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		sub, err := svc.Cancel(r.Context(), middleware.OrganizationIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func periodMutation(svc subsvc.Service, logg *logger.Logger, apply func(context.Context, string, enums.BillingPeriod) (*models.Subscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		organizationID := strings.TrimSpace(chi.URLParam(r, "organizationId"))
		if organizationID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "organization id is required"))
			return
		}

		var payload billingPeriodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := apply(r.Context(), organizationID, enums.BillingPeriod(payload.BillingPeriod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// AdminSubscriptionStatus overrides a subscription's status. It is the only path that
// writes inactive or expired.
func AdminSubscriptionStatus(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		subscriptionID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "subscriptionId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id"))
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.UpdateStatus(r.Context(), subscriptionID, subsvc.UpdateStatusInput{
			Status:    enums.SubscriptionStatus(payload.Status),
			StartDate: payload.StartDate,
			EndDate:   payload.EndDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func newSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	resp := &subscriptionResponse{
		ID:             sub.ID,
		OrganizationID: sub.OrganizationID,
		Status:         sub.Status.String(),
		TrialEndsAt:    sub.TrialEndsAt,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
	if sub.BillingPeriod != nil {
		period := sub.BillingPeriod.String()
		resp.BillingPeriod = &period
	}
	return resp
}
