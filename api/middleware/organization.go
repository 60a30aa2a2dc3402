package middleware

import (
	"net/http"

	"github.com/angelmondragon/starter-billing/api/responses"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

// RequireOrganization rejects sessions that have no active organization selected.
func RequireOrganization(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if OrganizationIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "active organization required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
