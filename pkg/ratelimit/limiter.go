package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey      = errors.New("rate limit key must not be empty")
	ErrInvalidWindow = errors.New("rate limit window must be positive")
)

// Decision is the outcome of a single check. Headers rendered from it map
// onto X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter decides whether a request identified by key may proceed within
// the current fixed window. Check is a single atomic check-and-increment:
// denied calls still count against the window so retry storms cannot reset
// the accounting. A limit of zero always denies.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// windowStart aligns the current window to wall-clock boundaries rather
// than to first-request time, so resets are predictable across keys.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
