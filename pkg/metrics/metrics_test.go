package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBillingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg)

	m.ObserveLifecycle("extend", nil)
	m.ObserveLifecycle("extend", nil)
	m.ObserveLifecycle("extend", errors.New("boom"))
	m.ObserveDecision("trial", true)
	m.ObserveWebhook("applied")
	m.ObserveWebhook("")
	m.ObservePortalLookup(20*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lifecycle.WithLabelValues("extend", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lifecycle.WithLabelValues("extend", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("trial", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.portalLatency))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var billing *BillingMetrics
	billing.ObserveLifecycle("activate", nil)
	billing.ObserveDecision("active", true)
	billing.ObserveWebhook("applied")
	billing.ObservePortalLookup(time.Second, nil)

	unregistered := NewBillingMetrics(nil)
	unregistered.ObserveLifecycle("activate", nil)

	var httpMetrics *HTTPMetrics
	httpMetrics.ObserveRequest("/health/live", "GET", 200, time.Millisecond)
	NewHTTPMetrics(nil).ObserveRequest("/health/live", "GET", 200, time.Millisecond)
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("/api/v1/payments/{paymentId}", "GET", 404, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/payments/{paymentId}", "GET", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}
