// Package ratelimit provides per-user request admission with pluggable counter backends.
package ratelimit

import (
	"context"
	"time"
)

// Store is the interface for rate limit counter backends.
// It supports different backends for different deployment scenarios:
// - Memory: Single instance deployments (fastest, no external dependencies)
// - PostgreSQL: Multi-instance deployments without additional infrastructure
// - Redis: High-scale deployments (works with Dragonfly, Redis, Valkey, KeyDB)
type Store interface {
	// Increment atomically increments the counter for a key.
	// If the key doesn't exist, or its window has elapsed, the counter restarts
	// at 1 with a fresh window. Returns the new count and the window start.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Get retrieves the current count and window start for a key.
	// Returns a zero count for unknown or elapsed keys.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Reset resets the counter for a key.
	Reset(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}
