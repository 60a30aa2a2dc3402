package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/api/routes"
	"github.com/angelmondragon/starter-billing/internal/entitlements"
	"github.com/angelmondragon/starter-billing/internal/payments"
	"github.com/angelmondragon/starter-billing/internal/paywall"
	"github.com/angelmondragon/starter-billing/internal/plans"
	"github.com/angelmondragon/starter-billing/internal/portal"
	"github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/internal/webhooks"
	paymentwebhook "github.com/angelmondragon/starter-billing/internal/webhooks/payments"
	stripewebhook "github.com/angelmondragon/starter-billing/internal/webhooks/stripe"
	pkgAuth "github.com/angelmondragon/starter-billing/pkg/auth"
	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/db"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/angelmondragon/starter-billing/pkg/instance"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
	"github.com/angelmondragon/starter-billing/pkg/migrate"
	"github.com/angelmondragon/starter-billing/pkg/redis"
	"github.com/angelmondragon/starter-billing/pkg/stripe"
)

const (
	shutdownTimeout     = 15 * time.Second
	visitorSweepEvery   = time.Minute
	stripeWebhookScope  = "stripe-webhooks"
	paymentWebhookScope = "payments-ipn"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	billingMetrics := metrics.NewBillingMetrics(registry)

	verifier, err := pkgAuth.NewVerifier(cfg.JWT, cfg.Clerk)
	requireResource(ctx, logg, "identity verifier", err)

	mode, err := cfg.Billing.BillingMode()
	requireResource(ctx, logg, "billing mode", err)

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		TrialLength:       cfg.Billing.TrialLength(),
		Metrics:           billingMetrics,
		Logger:            logg,
	})
	requireResource(ctx, logg, "subscription service", err)

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	requireResource(ctx, logg, "payment service", err)

	deps := routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Verifier:      verifier,
		Subscriptions: subscriptionService,
		Payments:      paymentService,
		Paywall:       paywall.NewGate(cfg.App.Name, cfg.Billing.PaywallExemptPaths),
		HTTPMetrics:   metrics.NewHTTPMetrics(registry),
		Gatherer:      registry,
	}

	entitlementParams := entitlements.ServiceParams{
		Subscriptions: subscriptionService,
		Mode:          mode,
		Metrics:       billingMetrics,
		Logger:        logg,
	}

	if mode == enums.BillingModePortal {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)

		checker, err := portal.NewChecker(portal.CheckerParams{
			Searcher: stripeClient,
			Cache:    redisClient,
			TTL:      cfg.Stripe.PortalCacheTTL,
			Metrics:  billingMetrics,
			Logger:   logg,
		})
		requireResource(ctx, logg, "portal checker", err)
		entitlementParams.Portal = checker

		if stripeClient.SigningSecret() != "" {
			stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Portal: checker, Logger: logg})
			requireResource(ctx, logg, "stripe webhook service", err)
			stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL, stripeWebhookScope)
			requireResource(ctx, logg, "stripe webhook guard", err)

			deps.StripeClient = stripeClient
			deps.StripeWebhook = stripeWebhookService
			deps.StripeWebhookGuard = stripeGuard
		}
	}

	entitlementService, err := entitlements.NewService(entitlementParams)
	requireResource(ctx, logg, "entitlement service", err)
	deps.Entitlements = entitlementService

	if cfg.Payments.IPNSecret != "" {
		ipnService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
			Payments:          paymentService,
			Subscriptions:     subscriptionService,
			TransactionRunner: dbClient,
			Metrics:           billingMetrics,
			Logger:            logg,
		})
		requireResource(ctx, logg, "payment webhook service", err)
		ipnGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL, paymentWebhookScope)
		requireResource(ctx, logg, "payment webhook guard", err)

		deps.PaymentWebhook = ipnService
		deps.PaymentWebhookGuard = ipnGuard
	}

	catalog, err := plans.NewCatalog(cfg.Billing)
	requireResource(ctx, logg, "plan catalog", err)
	deps.Catalog = catalog

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Run(ctx, visitorSweepEvery)
	deps.RateLimiter = limiter

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"billing_mode": mode.String(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
