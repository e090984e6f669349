package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/gatekit/admission/pkg/infra/prometheus"
)

// FailurePolicy decides what happens when the backing store is unavailable.
type FailurePolicy string

const (
	// FailClosed denies requests while the store is unreachable.
	FailClosed FailurePolicy = "closed"
	// FailOpen permits requests while the store is unreachable, trading
	// enforcement for availability.
	FailOpen FailurePolicy = "open"
)

func ParseFailurePolicy(s string) FailurePolicy {
	if s == string(FailOpen) {
		return FailOpen
	}
	return FailClosed
}

type breakerLimiter struct {
	next         Limiter
	breaker      *gobreaker.CircuitBreaker
	policy       FailurePolicy
	logger       *logrus.Logger
	timeProvider func() time.Time
}

type BreakerLimiterOpts struct {
	TimeProvider func() time.Time
}

// NewBreakerLimiter wraps next with a circuit breaker. Store failures no
// longer surface to the caller: the configured policy produces the decision
// instead, and the breaker keeps a flapping store from being hammered.
func NewBreakerLimiter(next Limiter, policy FailurePolicy, logger *logrus.Logger, maxFailures uint32, timeout time.Duration, opts *BreakerLimiterOpts) Limiter {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	settings := gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 5,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &breakerLimiter{
		next:         next,
		breaker:      gobreaker.NewCircuitBreaker(settings),
		policy:       policy,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

func (b *breakerLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	// Validation failures are not store failures and must not count
	// toward tripping the breaker.
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if window <= 0 {
		return Decision{}, ErrInvalidWindow
	}

	res, err := b.breaker.Execute(func() (interface{}, error) {
		decision, err := b.next.Check(ctx, key, limit, window)
		if err != nil {
			return nil, err
		}
		return decision, nil
	})
	if err == nil {
		decision, _ := res.(Decision)
		return decision, nil
	}

	prometheus.StoreFailuresTotal.WithLabelValues("ratelimit").Inc()
	prometheus.BreakerFallbackTotal.WithLabelValues(string(b.policy)).Inc()
	b.logger.WithFields(logrus.Fields{
		"key":    key,
		"policy": string(b.policy),
		"error":  err.Error(),
	}).Warn("rate limit store unavailable, applying failure policy")

	return Decision{
		Allowed:   b.policy == FailOpen,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   b.timeProvider().Add(window),
	}, nil
}
