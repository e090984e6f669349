package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/infra/cache"
)

type memoryRecord struct {
	mu     sync.Mutex
	record Record
}

// memoryStore keeps records in process. Guarantees only hold per-instance;
// multi-instance deployments should use the redis store.
type memoryStore struct {
	records      *cache.TTLMap
	logger       *logrus.Logger
	timeProvider func() time.Time
}

type MemoryStoreOpts struct {
	TTL          time.Duration
	TimeProvider func() time.Time
}

func NewMemoryStore(logger *logrus.Logger, opts *MemoryStoreOpts) Store {
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
	return &memoryStore{
		records:      cache.NewTTLMap(ttl).WithTimeProvider(timeProvider),
		logger:       logger,
		timeProvider: timeProvider,
	}
}

func (s *memoryStore) Begin(ctx context.Context, key, fingerprint string) (Outcome, *Result, error) {
	if key == "" {
		return "", nil, ErrEmptyKey
	}
	if fingerprint == "" {
		return "", nil, ErrEmptyFingerprint
	}

	fresh := &memoryRecord{
		record: Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      StatusInProgress,
			CreatedAt:   s.timeProvider(),
		},
	}

	current, created := s.records.SetIfAbsent(key, fresh)
	if created {
		return OutcomeProceed, nil, nil
	}

	existing, ok := current.(*memoryRecord)
	if !ok {
		return OutcomeProceed, nil, nil
	}

	existing.mu.Lock()
	defer existing.mu.Unlock()

	if existing.record.Fingerprint != fingerprint {
		return OutcomeConflict, nil, nil
	}
	if existing.record.Status == StatusCompleted {
		return OutcomeReplay, existing.record.Result, nil
	}
	return OutcomeInProgress, nil, nil
}

func (s *memoryStore) Complete(ctx context.Context, key string, result Result) error {
	if key == "" {
		return ErrEmptyKey
	}

	current, ok := s.records.Get(key)
	if !ok {
		s.logger.WithField("key", key).Warn("complete called without an in_progress idempotency record")
		return nil
	}
	existing, ok := current.(*memoryRecord)
	if !ok {
		return nil
	}

	existing.mu.Lock()
	defer existing.mu.Unlock()

	if existing.record.Status != StatusInProgress {
		s.logger.WithField("key", key).Warn("complete called on a record that is not in_progress")
		return nil
	}
	existing.record.Status = StatusCompleted
	existing.record.Result = &result
	return nil
}
