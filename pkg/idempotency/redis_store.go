package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const recordKeyPattern = "idempotency:%s"

type redisStore struct {
	redis        *redis.Client
	logger       *logrus.Logger
	ttl          time.Duration
	timeProvider func() time.Time
}

type RedisStoreOpts struct {
	TTL          time.Duration
	TimeProvider func() time.Time
}

// NewRedisStore returns a Store backed by a shared redis instance. SETNX
// provides the atomic create-if-absent and the record TTL handles the
// 24-hour expiry.
func NewRedisStore(redisClient *redis.Client, logger *logrus.Logger, opts *RedisStoreOpts) Store {
	ttl := 24 * time.Hour
	timeProvider := time.Now
	if opts != nil {
		if opts.TTL > 0 {
			ttl = opts.TTL
		}
		if opts.TimeProvider != nil {
			timeProvider = opts.TimeProvider
		}
	}
	return &redisStore{
		redis:        redisClient,
		logger:       logger,
		ttl:          ttl,
		timeProvider: timeProvider,
	}
}

func (s *redisStore) Begin(ctx context.Context, key, fingerprint string) (Outcome, *Result, error) {
	if key == "" {
		return "", nil, ErrEmptyKey
	}
	if fingerprint == "" {
		return "", nil, ErrEmptyFingerprint
	}

	recordKey := fmt.Sprintf(recordKeyPattern, key)
	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusInProgress,
		CreatedAt:   s.timeProvider(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	// Two attempts: the record can expire between a failed SETNX and the
	// following GET.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.redis.SetNX(ctx, recordKey, string(payload), s.ttl).Result()
		if err != nil {
			return "", nil, fmt.Errorf("failed to create idempotency record: %w", err)
		}
		if created {
			return OutcomeProceed, nil, nil
		}

		raw, err := s.redis.Get(ctx, recordKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to load idempotency record: %w", err)
		}

		var existing Record
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return "", nil, fmt.Errorf("corrupt idempotency record for key %q: %w", key, err)
		}

		if existing.Fingerprint != fingerprint {
			return OutcomeConflict, nil, nil
		}
		if existing.Status == StatusCompleted {
			return OutcomeReplay, existing.Result, nil
		}
		return OutcomeInProgress, nil, nil
	}

	return "", nil, fmt.Errorf("idempotency record for key %q kept expiring mid-check", key)
}

func (s *redisStore) Complete(ctx context.Context, key string, result Result) error {
	if key == "" {
		return ErrEmptyKey
	}

	recordKey := fmt.Sprintf(recordKeyPattern, key)
	raw, err := s.redis.Get(ctx, recordKey).Result()
	if errors.Is(err, redis.Nil) {
		s.logger.WithField("key", key).Warn("complete called without an in_progress idempotency record")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load idempotency record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return fmt.Errorf("corrupt idempotency record for key %q: %w", key, err)
	}
	if record.Status != StatusInProgress {
		s.logger.WithField("key", key).Warn("complete called on a record that is not in_progress")
		return nil
	}

	record.Status = StatusCompleted
	record.Result = &result
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	// SETXX with KeepTTL preserves the expiry anchored at record creation
	// and is a no-op if the record expired after the read above, so an
	// expired key can never come back without a TTL.
	set, err := s.redis.SetXX(ctx, recordKey, string(payload), redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	if !set {
		s.logger.WithField("key", key).Warn("idempotency record expired before completion")
	}
	return nil
}
