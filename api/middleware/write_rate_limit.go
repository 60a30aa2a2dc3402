package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/starter-billing/api/responses"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WriteRateLimitPolicy caps mutating requests per organization inside a fixed window.
type WriteRateLimitPolicy struct {
	Window time.Duration
	Limit  int
}

func (p WriteRateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// WriteRateLimit counts non-GET requests in Redis so the limit holds across replicas.
// Requests without an organization are counted against the client IP.
func WriteRateLimit(policy WriteRateLimitPolicy, store windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isReadOnly(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			scope := "write:org:" + OrganizationIDFromContext(ctx)
			if OrganizationIDFromContext(ctx) == "" {
				scope = "write:ip:" + clientIP(r)
			}

			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.Limit), policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "write.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
