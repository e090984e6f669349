package common

import "time"

const (
	// Default policy applied when no per-endpoint rule matches.
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute

	// Idempotency records are kept for 24 hours from creation.
	IdempotencyRecordTTL = 24 * time.Hour

	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "Idempotency-Replayed"

	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
	RetryAfterHeader         = "Retry-After"
)
