package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_http_requests_total",
		Help: "Total HTTP requests processed, labeled by route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payin_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	PayinsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_created_total",
		Help: "Payins created, labeled by source (live, fallback, synthetic) and replay flag",
	}, []string{"source", "replay"})

	PayinPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payin_persist_failures_total",
		Help: "Payin records that could not be persisted after a successful create",
	})

	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_provider_attempts_total",
		Help: "Provider calls, labeled by operation and outcome (ok, timeout, failure)",
	}, []string{"operation", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payin_provider_request_duration_seconds",
		Help:    "Latency of single provider attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_webhook_events_total",
		Help: "Authenticated webhook callbacks, labeled by event kind and audit status",
	}, []string{"kind", "status"})

	WebhookRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payin_webhook_rejected_total",
		Help: "Webhook callbacks rejected for an invalid or missing signature",
	})

	WebhookLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_webhook_lookup_total",
		Help: "Payin lookups by tier that produced the match (or orphan)",
	}, []string{"tier"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_settlements_total",
		Help: "Settlement attempts, labeled by result (credited, replay, error)",
	}, []string{"result"})

	SettlementInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payin_settlement_inconsistencies_total",
		Help: "Settlements where the balance and the ledger disagreed; alert on any increase",
	})

	PricingCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payin_pricing_cache_total",
		Help: "Pricing cache reads, labeled by result (hit, refresh, stale, miss)",
	}, []string{"result"})
)

// Bool renders a label value for boolean dimensions.
func Bool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
