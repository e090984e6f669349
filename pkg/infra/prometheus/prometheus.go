package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Check latency buckets in milliseconds. The limiter gates every
	// request, so anything beyond a few milliseconds is already a problem.
	latencyBuckets = []float64{
		0.1, 0.25, 0.5,
		1, 2.5, 5,
		10, 25, 50,
		100, 250,
	}

	RateLimitDecisionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"outcome"}, // "allowed" or "denied"
	)

	RateLimitCheckLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_ratelimit_check_latency_ms",
			Help:    "Rate limit check latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	IdempotencyOutcomesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_idempotency_outcomes_total",
			Help: "Total number of idempotency begin outcomes",
		},
		[]string{"outcome"}, // "proceed", "replay", "in_progress", "conflict"
	)

	StoreFailuresTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_store_failures_total",
			Help: "Backing store failures observed by the enforcement layer",
		},
		[]string{"store"}, // "ratelimit" or "idempotency"
	)

	BreakerFallbackTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_breaker_fallback_total",
			Help: "Decisions produced by the failure policy while the breaker is open",
		},
		[]string{"policy"}, // "open" or "closed"
	)
)

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
