package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	mu          sync.Mutex
	windowStart time.Time
	windowEnd   time.Time
	count       int64
	evicted     bool
}

// memoryLimiter keeps counters in process. Guarantees only hold
// per-instance; multi-instance deployments should use the redis limiter.
type memoryLimiter struct {
	mu           sync.RWMutex
	counters     map[string]*memoryCounter
	timeProvider func() time.Time
	done         chan struct{}
	closeOnce    sync.Once
}

type MemoryLimiterOpts struct {
	TimeProvider func() time.Time
	// SweepInterval controls how often stale counters are evicted.
	// Zero disables the janitor; stale windows are still rolled lazily.
	SweepInterval time.Duration
}

func NewMemoryLimiter(opts *MemoryLimiterOpts) Limiter {
	timeProvider := time.Now
	sweep := time.Duration(0)
	if opts != nil {
		if opts.TimeProvider != nil {
			timeProvider = opts.TimeProvider
		}
		sweep = opts.SweepInterval
	}
	l := &memoryLimiter{
		counters:     make(map[string]*memoryCounter),
		timeProvider: timeProvider,
		done:         make(chan struct{}),
	}
	if sweep > 0 {
		go l.janitor(sweep)
	}
	return l
}

func (l *memoryLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if window <= 0 {
		return Decision{}, ErrInvalidWindow
	}

	now := l.timeProvider()
	start := windowStart(now, window)

	var count int64
	for {
		counter := l.counter(key)
		counter.mu.Lock()
		// The janitor may have removed this counter from the map between
		// the lookup and taking its lock; start over on a fresh one.
		if counter.evicted {
			counter.mu.Unlock()
			continue
		}
		if !counter.windowStart.Equal(start) {
			counter.windowStart = start
			counter.windowEnd = start.Add(window)
			counter.count = 0
		}
		counter.count++
		count = counter.count
		counter.mu.Unlock()
		break
	}

	return Decision{
		Allowed:   limit > 0 && count <= int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   start.Add(window),
	}, nil
}

func (l *memoryLimiter) counter(key string) *memoryCounter {
	l.mu.RLock()
	counter, ok := l.counters[key]
	l.mu.RUnlock()
	if ok {
		return counter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if counter, ok = l.counters[key]; ok {
		return counter
	}
	counter = &memoryCounter{}
	l.counters[key] = counter
	return counter
}

func (l *memoryLimiter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.done:
			return
		}
	}
}

// evictStale drops counters whose window has been over for at least one
// extra window length, mirroring the redis counter TTL of twice the
// window. A counter inside a live window is never evicted, no matter how
// long the key has been idle.
func (l *memoryLimiter) evictStale() {
	now := l.timeProvider()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, counter := range l.counters {
		counter.mu.Lock()
		grace := counter.windowEnd.Sub(counter.windowStart)
		if !counter.windowEnd.IsZero() && now.After(counter.windowEnd.Add(grace)) {
			counter.evicted = true
			delete(l.counters, key)
		}
		counter.mu.Unlock()
	}
}

func (l *memoryLimiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}
