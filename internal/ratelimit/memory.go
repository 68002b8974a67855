package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory counters.
// This is the default store for single-instance deployments.
// It provides the fastest performance but doesn't share state across instances.
type MemoryStore struct {
	data         map[string]*entry
	mu           sync.Mutex
	gcInterval   time.Duration
	sweepMaxKeys int
	sweepHorizon time.Duration
	stopCh       chan struct{}
	closeOnce    sync.Once
}

type entry struct {
	count       int64
	windowStart time.Time
	window      time.Duration
	lastRequest time.Time
}

// NewMemoryStore creates a new in-memory rate limit store.
// gcInterval specifies how often the background cleanup runs.
// sweepMaxKeys and sweepHorizon bound memory: once more than sweepMaxKeys
// counters are tracked, any counter whose window started more than
// sweepHorizon ago is dropped on the next increment, regardless of that
// counter's own window size.
func NewMemoryStore(gcInterval time.Duration, sweepMaxKeys int, sweepHorizon time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	if sweepMaxKeys <= 0 {
		sweepMaxKeys = 1000
	}
	if sweepHorizon <= 0 {
		sweepHorizon = time.Hour
	}

	store := &MemoryStore{
		data:         make(map[string]*entry),
		gcInterval:   gcInterval,
		sweepMaxKeys: sweepMaxKeys,
		sweepHorizon: sweepHorizon,
		stopCh:       make(chan struct{}),
	}

	go store.gc()

	return store
}

// Increment atomically increments the counter for a key.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if len(s.data) > s.sweepMaxKeys {
		s.sweepLocked(now)
	}

	e, exists := s.data[key]
	if !exists {
		e = &entry{windowStart: now}
		s.data[key] = e
	}

	if now.Sub(e.windowStart) > window {
		e.count = 0
		e.windowStart = now
	}

	e.count++
	e.window = window
	e.lastRequest = now

	return e.count, e.windowStart, nil
}

// Get retrieves the current count and window start for a key.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[key]
	if !exists {
		return 0, time.Time{}, nil
	}
	if time.Since(e.windowStart) > e.window {
		return 0, time.Time{}, nil
	}

	return e.count, e.windowStart, nil
}

// Reset resets the counter for a key.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close stops the garbage collection goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Len returns the number of tracked counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// sweepLocked drops counters whose window started before the retention horizon.
// Callers must hold s.mu.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, e := range s.data {
		if now.Sub(e.windowStart) > s.sweepHorizon {
			delete(s.data, key)
		}
	}
}

// gc periodically removes counters older than the retention horizon.
func (s *MemoryStore) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.sweepLocked(time.Now())
			s.mu.Unlock()
		}
	}
}
