package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const counterKeyPattern = "ratelimit:%s:%d"

type redisLimiter struct {
	redis        *redis.Client
	logger       *logrus.Logger
	timeProvider func() time.Time
}

type RedisLimiterOpts struct {
	TimeProvider func() time.Time
}

// NewRedisLimiter returns a Limiter backed by a shared redis instance, so
// the same accounting holds across process instances. Atomicity of the
// check-and-increment comes from INCR.
func NewRedisLimiter(redisClient *redis.Client, logger *logrus.Logger, opts *RedisLimiterOpts) Limiter {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &redisLimiter{
		redis:        redisClient,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

func (r *redisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if window <= 0 {
		return Decision{}, ErrInvalidWindow
	}

	now := r.timeProvider()
	start := windowStart(now, window)
	counterKey := fmt.Sprintf(counterKeyPattern, key, start.Unix())

	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	// Counters outlive the window by one more window length so a denying
	// check near the boundary can still read them; redis evicts afterwards.
	pipe.Expire(ctx, counterKey, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("rate limit counter update failed")
		return Decision{}, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	count := incr.Val()
	return Decision{
		Allowed:   limit > 0 && count <= int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   start.Add(window),
	}, nil
}
