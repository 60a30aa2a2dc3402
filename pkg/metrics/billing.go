package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// BillingMetrics records lifecycle mutations, entitlement decisions and payment webhooks.
type BillingMetrics struct {
	lifecycle     *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	portalLatency *prometheus.HistogramVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	lifecycle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_lifecycle_total",
		Help: "Subscription lifecycle mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Entitlement decisions by reason and access result.",
	}, []string{"reason", "has_access"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Payment gateway notifications by result.",
	}, []string{"result"})
	portalLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_portal_lookup_seconds",
		Help:    "Latency of billing portal subscription lookups.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(lifecycle, decisions, webhooks, portalLatency)
	return &BillingMetrics{
		lifecycle:     lifecycle,
		decisions:     decisions,
		webhooks:      webhooks,
		portalLatency: portalLatency,
	}
}

// ObserveLifecycle counts one lifecycle mutation.
func (m *BillingMetrics) ObserveLifecycle(operation string, err error) {
	if m == nil || m.lifecycle == nil {
		return
	}
	m.lifecycle.WithLabelValues(normalizeLabel(operation), outcome(err)).Inc()
}

// ObserveDecision counts one entitlement decision.
func (m *BillingMetrics) ObserveDecision(reason string, hasAccess bool) {
	if m == nil || m.decisions == nil {
		return
	}
	access := "false"
	if hasAccess {
		access = "true"
	}
	m.decisions.WithLabelValues(normalizeLabel(reason), access).Inc()
}

// ObserveWebhook counts one payment notification by result (applied, duplicate, ignored, rejected, failed).
func (m *BillingMetrics) ObserveWebhook(result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePortalLookup records the duration of one portal call.
func (m *BillingMetrics) ObservePortalLookup(duration time.Duration, err error) {
	if m == nil || m.portalLatency == nil {
		return
	}
	m.portalLatency.WithLabelValues(outcome(err)).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
