package ratelimit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store using PostgreSQL.
// This is suitable for multi-instance deployments without requiring Redis.
// It uses UPSERT with ON CONFLICT to atomically increment counters.
//
// Performance characteristics:
// - Slower than Redis but uses the existing database connection pool
// - Good for deployments up to ~1000 requests/second
// - For higher scale, use RedisStore
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed rate limit store.
// The store uses the rate_limits table which must be created via migration.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
	}
}

// Increment atomically increments the counter for a key.
// Uses PostgreSQL's UPSERT to handle concurrent access safely; an elapsed
// window restarts the counter at 1 with a fresh window start.
func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	expiresAt := time.Now().Add(window)

	var count int64
	var windowStart time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (key, count, window_start, expires_at)
		VALUES ($1, 1, NOW(), $2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.expires_at <= NOW() THEN 1
				ELSE rate_limits.count + 1
			END,
			window_start = CASE
				WHEN rate_limits.expires_at <= NOW() THEN NOW()
				ELSE rate_limits.window_start
			END,
			expires_at = CASE
				WHEN rate_limits.expires_at <= NOW() THEN $2
				ELSE rate_limits.expires_at
			END
		RETURNING count, window_start
	`, key, expiresAt).Scan(&count, &windowStart)

	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter")
		return 0, time.Time{}, err
	}

	return count, windowStart, nil
}

// Get retrieves the current count and window start for a key.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	var count int64
	var windowStart time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT count, window_start
		FROM rate_limits
		WHERE key = $1 AND expires_at > NOW()
	`, key).Scan(&count, &windowStart)

	if err != nil {
		// Not found is not an error - return zero count
		return 0, time.Time{}, nil
	}

	return count, windowStart, nil
}

// Reset resets the counter for a key.
func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM rate_limits WHERE key = $1
	`, key)
	return err
}

// Close is a no-op for PostgresStore as we don't own the connection pool.
func (s *PostgresStore) Close() error {
	return nil
}
