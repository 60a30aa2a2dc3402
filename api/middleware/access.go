package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/starter-billing/api/responses"
	"github.com/angelmondragon/starter-billing/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

type accessChecker interface {
	HasValidAccess(ctx context.Context, organizationID string) (subscriptions.Access, error)
}

// RequireAccess gates feature routes on the organization's entitlement. Callers without
// access receive 402 with the decision reason in the error details.
func RequireAccess(checker accessChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
				return
			}

			access, err := checker.HasValidAccess(ctx, OrganizationIDFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !access.HasAccess {
				details := map[string]any{"reason": access.Reason.String()}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodePaymentRequired, "an active subscription is required").WithDetails(details))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
