package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/starter-billing/api/responses"
	pkgAuth "github.com/angelmondragon/starter-billing/pkg/auth"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the caller's identity.
func Auth(verifier pkgAuth.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity verifier unavailable"))
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity, logg)))
		})
	}
}

// OptionalAuth resolves the session when one is presented and otherwise lets the request
// through anonymously. Invalid or expired tokens are treated like no session at all.
func OptionalAuth(verifier pkgAuth.Verifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if logg != nil {
					logg.Debug(logg.WithField(r.Context(), "reason", err.Error()), "auth.optional.ignored")
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity, logg)))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

func withIdentity(ctx context.Context, identity *pkgAuth.Identity, logg *logger.Logger) context.Context {
	if identity == nil {
		return ctx
	}
	ctx = WithUserID(ctx, identity.UserID)
	ctx = WithRole(ctx, identity.Role)
	if identity.HasOrganization() {
		ctx = WithOrganizationID(ctx, identity.OrganizationID)
	}

	if logg != nil {
		ctx = logg.WithUserID(ctx, identity.UserID)
		ctx = logg.WithActorRole(ctx, identity.Role.String())
		if identity.HasOrganization() {
			ctx = logg.WithOrganizationID(ctx, identity.OrganizationID)
		}
	}
	return ctx
}
