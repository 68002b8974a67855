package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore implements Store using Redis (or Redis-compatible backends like
// Dragonfly, Valkey and KeyDB). This is the recommended store for high-scale
// deployments: counters live in memory, no WAL writes, and atomic increments
// hold up under heavy concurrency across many instances.
type RedisStore struct {
	client *redis.Client
}

// incrementScript atomically increments a counter, stamping the window start
// and expiration only on the first increment of a window.
var incrementScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[1])
	end
	local start = redis.call('GET', KEYS[2])
	return {count, start}
`)

// NewRedisStore creates a new Redis-backed rate limit store.
// url should be in the format: redis://[password@]host:port[/db]
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis-compatible backend for rate limiting")

	return &RedisStore{
		client: client,
	}, nil
}

// Increment atomically increments the counter for a key.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	countKey := "ratelimit:" + key
	startKey := "ratelimit:start:" + key
	now := time.Now()

	result, err := incrementScript.Run(ctx, s.client,
		[]string{countKey, startKey},
		window.Milliseconds(), now.UnixMilli()).Slice()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter in Redis")
		return 0, time.Time{}, err
	}

	count, _ := result[0].(int64)
	windowStart := now
	if startStr, ok := result[1].(string); ok {
		if millis, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			windowStart = time.UnixMilli(millis)
		}
	}

	return count, windowStart, nil
}

// Get retrieves the current count and window start for a key.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, "ratelimit:"+key)
	startCmd := pipe.Get(ctx, "ratelimit:start:"+key)

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return 0, time.Time{}, err
	}

	countStr, err := getCmd.Result()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, err
	}

	windowStart := time.Time{}
	if startStr, err := startCmd.Result(); err == nil {
		if millis, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			windowStart = time.UnixMilli(millis)
		}
	}

	return count, windowStart, nil
}

// Reset resets the counter for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, "ratelimit:"+key, "ratelimit:start:"+key).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
