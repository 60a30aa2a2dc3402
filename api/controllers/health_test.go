package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/pkg/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-Starter-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReady(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, stubPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ready"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HealthReady(testConfig(), nil, stubPinger{}, stubPinger{err: errors.New("connection refused")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestAppPingIncludesOrganization(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/app/ping", nil)
	req = req.WithContext(middleware.WithOrganizationID(req.Context(), "org-1"))

	rec := httptest.NewRecorder()
	AppPing().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"organization_id":"org-1"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
