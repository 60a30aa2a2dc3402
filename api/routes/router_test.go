package routes

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/internal/entitlements"
	"github.com/angelmondragon/starter-billing/internal/payments"
	"github.com/angelmondragon/starter-billing/internal/paywall"
	"github.com/angelmondragon/starter-billing/internal/plans"
	subscriptionsvc "github.com/angelmondragon/starter-billing/internal/subscriptions"
	"github.com/angelmondragon/starter-billing/internal/webhooks"
	paymentwebhook "github.com/angelmondragon/starter-billing/internal/webhooks/payments"
	pkgAuth "github.com/angelmondragon/starter-billing/pkg/auth"
	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/db"
	"github.com/angelmondragon/starter-billing/pkg/db/models"
	"github.com/angelmondragon/starter-billing/pkg/enums"
	"github.com/angelmondragon/starter-billing/pkg/logger"
	"github.com/angelmondragon/starter-billing/pkg/metrics"
	"github.com/angelmondragon/starter-billing/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", Name: "Starter"},
		JWT: config.JWTConfig{
			Provider:          config.AuthProviderJWT,
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Billing: config.BillingConfig{
			Mode:               "local",
			TrialDays:          7,
			PaywallExemptPaths: []string{"/subscription", "/onboarding", "/settings"},
			Currency:           "USD",
			MonthlyPrice:       "5",
			YearlyPrice:        "50",
		},
		Payments:  config.PaymentsConfig{IPNSecret: "ipn-secret", IdempotencyTTL: time.Hour},
		RateLimit: config.RateLimitConfig{WriteWindow: time.Minute, WriteLimit: 100},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Subscription{}, &models.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dbClient := db.FromConn(conn)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	redisClient := redis.FromClient(raw)

	verifier, err := pkgAuth.NewHMACVerifier(cfg.JWT)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry)

	subs, err := subscriptionsvc.NewService(subscriptionsvc.ServiceParams{
		Repo:              subscriptionsvc.NewRepository(conn),
		TransactionRunner: dbClient,
		TrialLength:       cfg.Billing.TrialLength(),
		Metrics:           billingMetrics,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("subscriptions: %v", err)
	}
	ents, err := entitlements.NewService(entitlements.ServiceParams{Subscriptions: subs, Metrics: billingMetrics, Logger: logg})
	if err != nil {
		t.Fatalf("entitlements: %v", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	ipn, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Payments:          paymentSvc,
		Subscriptions:     subs,
		TransactionRunner: dbClient,
		Metrics:           billingMetrics,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("ipn service: %v", err)
	}
	ipnGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL, "payments-ipn")
	if err != nil {
		t.Fatalf("ipn guard: %v", err)
	}
	catalog, err := plans.NewCatalog(cfg.Billing)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	return NewRouter(cfg, logg, Dependencies{
		DB:                  dbClient,
		Redis:               redisClient,
		Verifier:            verifier,
		Subscriptions:       subs,
		Entitlements:        ents,
		Payments:            paymentSvc,
		Catalog:             catalog,
		Paywall:             paywall.NewGate(cfg.App.Name, cfg.Billing.PaywallExemptPaths),
		PaymentWebhook:      ipn,
		PaymentWebhookGuard: ipnGuard,
		RateLimiter:         middleware.NewIPRateLimiter(0, 0),
		HTTPMetrics:         metrics.NewHTTPMetrics(registry),
		Gatherer:            registry,
	})
}

func buildToken(t *testing.T, cfg *config.Config, organizationID string, role enums.MemberRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:               "user-1",
		ActiveOrganizationID: organizationID,
		Role:                 role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func do(router http.Handler, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, testConfig())

	if resp := do(router, http.MethodGet, "/health/live", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for live got %d", resp.Code)
	}
	if resp := do(router, http.MethodGet, "/health/ready", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ready got %d (%s)", resp.Code, resp.Body.String())
	}

	resp := do(router, http.MethodGet, "/metrics", "", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `route="/health/live"`) {
		t.Fatalf("expected route-labelled request metric in %s", resp.Body.String())
	}
}

func TestPublicPlans(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := do(router, http.MethodGet, "/api/public/plans", "", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"pro-monthly"`) {
		t.Fatalf("unexpected plans body %s", resp.Body.String())
	}
}

func TestSubscriptionReadsDegradeWithoutSession(t *testing.T) {
	router := newTestRouter(t, testConfig())

	resp := do(router, http.MethodGet, "/api/v1/subscription", "", "", nil)
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != `{"data":null}` {
		t.Fatalf("expected null subscription got %d %s", resp.Code, resp.Body.String())
	}

	resp = do(router, http.MethodGet, "/api/v1/subscription/access", "expired-or-garbage", "", nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"no_subscription"`) {
		t.Fatalf("expected no_subscription got %d %s", resp.Code, resp.Body.String())
	}
}

func TestWriteRoutesRequireSessionAndOrganization(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	if resp := do(router, http.MethodPost, "/api/v1/subscription/trial", "", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	noOrg := buildToken(t, cfg, "", enums.MemberRoleOwner)
	if resp := do(router, http.MethodPost, "/api/v1/subscription/trial", noOrg, "", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without organization got %d", resp.Code)
	}
}

func TestTrialUnlocksGatedRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	token := buildToken(t, cfg, "org-1", enums.MemberRoleOwner)

	resp := do(router, http.MethodGet, "/api/v1/app/ping", token, "", nil)
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 before trial got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"no_subscription"`) {
		t.Fatalf("expected reason in details got %s", resp.Body.String())
	}

	resp = do(router, http.MethodPost, "/api/v1/subscription/trial", token, "", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for trial got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = do(router, http.MethodGet, "/api/v1/app/ping", token, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 after trial got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = do(router, http.MethodGet, "/api/v1/paywall?path=/dashboard", token, "", nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"blocked":false`) {
		t.Fatalf("expected open paywall got %d %s", resp.Code, resp.Body.String())
	}
}

func TestIdempotencyReplaysTrialCreation(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	token := buildToken(t, cfg, "org-1", enums.MemberRoleOwner)
	headers := map[string]string{"Idempotency-Key": "trial-1"}

	first := do(router, http.MethodPost, "/api/v1/subscription/trial", token, "", headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}
	second := do(router, http.MethodPost, "/api/v1/subscription/trial", token, "", headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d (%s)", second.Code, second.Body.String())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical replay body")
	}

	third := do(router, http.MethodPost, "/api/v1/subscription/trial", token, "", nil)
	if third.Code != http.StatusConflict {
		t.Fatalf("expected 409 without key got %d", third.Code)
	}
}

func TestTenantsCannotGrantThemselvesPaidAccess(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	member := buildToken(t, cfg, "org-free", enums.MemberRoleMember)
	owner := buildToken(t, cfg, "org-free", enums.MemberRoleOwner)
	body := `{"billing_period":"yearly"}`

	if resp := do(router, http.MethodPost, "/api/v1/subscription/trial", member, "", nil); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for trial got %d", resp.Code)
	}

	for _, path := range []string{"/api/v1/subscription/activate", "/api/v1/subscription/extend"} {
		resp := do(router, http.MethodPost, path, owner, body, map[string]string{"Idempotency-Key": "k-" + path})
		if resp.Code != http.StatusNotFound && resp.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected %s to be unmounted got %d", path, resp.Code)
		}
	}

	for _, token := range []string{member, owner} {
		for i, action := range []string{"activate", "extend"} {
			path := "/api/admin/v1/organizations/org-free/subscription/" + action
			resp := do(router, http.MethodPost, path, token, body, map[string]string{"Idempotency-Key": fmt.Sprintf("key-%d", i)})
			if resp.Code != http.StatusForbidden {
				t.Fatalf("expected 403 on %s got %d", action, resp.Code)
			}
		}
	}

	resp := do(router, http.MethodGet, "/api/v1/subscription/access", member, "", nil)
	if !strings.Contains(resp.Body.String(), `"reason":"trial"`) {
		t.Fatalf("expected trial access only got %s", resp.Body.String())
	}

	if resp := do(router, http.MethodPost, "/api/v1/subscription/cancel", member, "", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member cancel got %d", resp.Code)
	}
	if resp := do(router, http.MethodPost, "/api/v1/subscription/cancel", owner, "", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner cancel got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestOperatorExtendRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	owner := buildToken(t, cfg, "org-1", enums.MemberRoleOwner)
	operator := buildToken(t, cfg, "", enums.MemberRoleOperator)
	path := "/api/admin/v1/organizations/org-1/subscription/extend"

	if resp := do(router, http.MethodPost, "/api/v1/subscription/trial", owner, "", nil); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for trial got %d", resp.Code)
	}

	resp := do(router, http.MethodPost, path, operator, `{"billing_period":"monthly"}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Idempotency-Key") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	resp = do(router, http.MethodPost, path, operator, `{"billing_period":"monthly"}`, map[string]string{"Idempotency-Key": "ext-1"})
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"status":"active"`) {
		t.Fatalf("expected operator extend to activate got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAdminRoutesRequireOperator(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	admin := buildToken(t, cfg, "org-1", enums.MemberRoleAdmin)
	if resp := do(router, http.MethodGet, "/api/admin/v1/payments/external/np-1", admin, "", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for organization admin got %d", resp.Code)
	}

	operator := buildToken(t, cfg, "", enums.MemberRoleOperator)
	if resp := do(router, http.MethodGet, "/api/admin/v1/payments/external/np-1", operator, "", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown payment got %d", resp.Code)
	}
}

func TestPaymentWebhookRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig())

	resp := do(router, http.MethodPost, "/api/v1/webhooks/payments", "", `{"payment_id":1,"payment_status":"finished"}`,
		map[string]string{"x-nowpayments-sig": "deadbeef"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature got %d", resp.Code)
	}

	resp = do(router, http.MethodPost, "/api/v1/webhooks/stripe", "", `{}`, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected stripe webhook to be unmounted in local mode got %d", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.App.CORSAllowedOrigins = []string{"http://localhost:3000"}
	router := newTestRouter(t, cfg)

	resp := do(router, http.MethodOptions, "/api/v1/subscription/trial", "", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin header got %q", got)
	}
}
