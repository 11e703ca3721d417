// Package observability exposes Prometheus metrics for the AI service
// layer. Metrics are registered on the default registry and served from the
// HTTP server's /metrics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tutorgate/internal/core"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorgate_requests_total",
			Help: "Total AI requests by feature, provider and outcome",
		},
		[]string{"feature", "provider", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutorgate_request_duration_seconds",
			Help:    "AI request latency by feature and provider",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"feature", "provider"},
	)

	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorgate_cache_hits_total",
			Help: "Completions served from the response cache",
		},
		[]string{"feature"},
	)

	quotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorgate_quota_denials_total",
			Help: "Requests denied because the user's quota was exhausted",
		},
		[]string{"feature"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorgate_tokens_total",
			Help: "Tokens consumed by provider and direction",
		},
		[]string{"provider", "direction"},
	)

	costCentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorgate_cost_cents_total",
			Help: "Accumulated request cost in cents by feature and provider",
		},
		[]string{"feature", "provider"},
	)
)

// Outcome labels for RecordRequest.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
	OutcomeDenied   = "quota_denied"
)

// RecordRequest counts one request and observes its latency.
func RecordRequest(feature core.FeatureType, provider core.Provider, outcome string, duration time.Duration) {
	requestsTotal.WithLabelValues(string(feature), string(provider), outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeError {
		requestDuration.WithLabelValues(string(feature), string(provider)).Observe(duration.Seconds())
	}
}

// RecordCacheHit counts one completion served from cache.
func RecordCacheHit(feature core.FeatureType) {
	cacheHitsTotal.WithLabelValues(string(feature)).Inc()
}

// RecordQuotaDenial counts one request rejected for exhausted quota.
func RecordQuotaDenial(feature core.FeatureType) {
	quotaDenialsTotal.WithLabelValues(string(feature)).Inc()
}

// RecordUsage counts tokens and cost for one completed request.
func RecordUsage(feature core.FeatureType, provider core.Provider, tokens core.TokenUsage, costCents int64) {
	tokensTotal.WithLabelValues(string(provider), "input").Add(float64(tokens.Input))
	tokensTotal.WithLabelValues(string(provider), "output").Add(float64(tokens.Output))
	costCentsTotal.WithLabelValues(string(feature), string(provider)).Add(float64(costCents))
}
