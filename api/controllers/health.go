package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/starter-billing/api/responses"
	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/db"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/redis"
)

const readinessTimeout = 2 * time.Second

const envHeader = "X-Starter-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and Redis. Either dependency failing reports 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, database db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		var failed error
		if database != nil {
			checks["database"] = "ok"
			if err := database.Ping(ctx); err != nil {
				checks["database"] = "down"
				failed = err
			}
		}
		if cache != nil {
			checks["redis"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				checks["redis"] = "down"
				failed = err
			}
		}

		if failed != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, failed, "dependency unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
