package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/starter-billing/api/controllers"
	billingcontrollers "github.com/angelmondragon/starter-billing/api/controllers/billing"
	subscriptioncontrollers "github.com/angelmondragon/starter-billing/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/starter-billing/api/controllers/webhooks"
	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/internal/entitlements"
	"github.com/angelmondragon/starter-billing/internal/payments"
	"github.com/angelmondragon/starter-billing/internal/paywall"
	"github.com/angelmondragon/starter-billing/internal/plans"
	subscriptionsvc "github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/internal/webhooks"
	paymentwebhook "github.com/angelmondragon/starter-billing/internal/webhooks/payments"
	stripewebhook "github.com/angelmondragon/starter-billing/internal/webhooks/stripe"
	pkgAuth "github.com/angelmondragon/starter-billing/pkg/auth"
	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/db"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
	"github.com/angelmondragon/starter-billing/pkg/redis"
	"github.com/angelmondragon/starter-billing/pkg/stripe"
)

// Dependencies carries everything the HTTP surface needs. The Stripe fields are only
// set when billing runs in portal mode.
type Dependencies struct {
	DB       db.Pinger
	Redis    *redis.Client
	Verifier pkgAuth.Verifier

	Subscriptions subscriptionsvc.Service
	Entitlements  entitlements.Service
	Payments      payments.Service
	Catalog       *plans.Catalog
	Paywall       *paywall.Gate

	PaymentWebhook      *paymentwebhook.Service
	PaymentWebhookGuard *webhooks.IdempotencyGuard

	StripeClient       *stripe.Client
	StripeWebhook      *stripewebhook.Service
	StripeWebhookGuard *webhooks.IdempotencyGuard

	RateLimiter *middleware.IPRateLimiter
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}
	r.Use(middleware.RateLimit(deps.RateLimiter, logg))

	writePolicy := middleware.WriteRateLimitPolicy{
		Window: cfg.RateLimit.WriteWindow,
		Limit:  cfg.RateLimit.WriteLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/plans", billingcontrollers.PublicPlans(deps.Catalog, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			if deps.PaymentWebhook != nil && deps.PaymentWebhookGuard != nil {
				r.Post("/payments", webhookcontrollers.PaymentWebhook(deps.PaymentWebhook, cfg.Payments.IPNSecret, deps.PaymentWebhookGuard, logg))
			}
			if deps.StripeWebhook != nil && deps.StripeClient != nil && deps.StripeWebhookGuard != nil {
				r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeWebhookGuard, logg))
			}
		})

		// Reads degrade to empty answers when the session is missing or expired.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(deps.Verifier, logg))
			r.Get("/subscription", subscriptioncontrollers.SubscriptionFetch(deps.Entitlements, logg))
			r.Get("/subscription/access", subscriptioncontrollers.SubscriptionAccess(deps.Entitlements, logg))
			r.Get("/paywall", subscriptioncontrollers.Paywall(deps.Entitlements, deps.Paywall, logg))
		})

		// Group middleware runs after routing, so idempotency sees the full route pattern.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Verifier, logg))
			r.Use(middleware.RequireOrganization(logg))
			r.Use(middleware.WriteRateLimit(writePolicy, deps.Redis, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Post("/subscription/trial", subscriptioncontrollers.SubscriptionTrial(deps.Subscriptions, logg))
			r.With(middleware.RequireRole(logg, enums.MemberRoleOwner, enums.MemberRoleAdmin)).
				Post("/subscription/cancel", subscriptioncontrollers.SubscriptionCancel(deps.Subscriptions, logg))

			r.Get("/payments", billingcontrollers.PaymentsList(deps.Payments, logg))
			r.Post("/payments", billingcontrollers.PaymentCreate(deps.Payments, deps.Subscriptions, deps.Catalog, logg))
			r.Get("/payments/{paymentId}", billingcontrollers.PaymentDetail(deps.Payments, logg))

			r.With(middleware.RequireAccess(deps.Entitlements, logg)).
				Get("/app/ping", controllers.AppPing())
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Verifier, logg))
			r.Use(middleware.RequireRole(logg, enums.MemberRoleOperator))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			// Paid periods come from settled payments; these are operator corrections.
			r.Post("/organizations/{organizationId}/subscription/activate", subscriptioncontrollers.AdminSubscriptionActivate(deps.Subscriptions, logg))
			r.Post("/organizations/{organizationId}/subscription/extend", subscriptioncontrollers.AdminSubscriptionExtend(deps.Subscriptions, logg))
			r.Patch("/subscriptions/{subscriptionId}/status", subscriptioncontrollers.AdminSubscriptionStatus(deps.Subscriptions, logg))
			r.Patch("/payments/{paymentId}", billingcontrollers.AdminPaymentUpdate(deps.Payments, logg))
			r.Get("/payments/external/{externalId}", billingcontrollers.AdminPaymentByExternalID(deps.Payments, logg))
		})
	})

	return r
}
