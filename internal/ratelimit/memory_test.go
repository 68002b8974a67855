package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryStore(t *testing.T) {
	t.Run("applies defaults for zero values", func(t *testing.T) {
		store := NewMemoryStore(0, 0, 0)
		require.NotNil(t, store)
		assert.Equal(t, 10*time.Minute, store.gcInterval)
		assert.Equal(t, 1000, store.sweepMaxKeys)
		assert.Equal(t, time.Hour, store.sweepHorizon)
		store.Close()
	})

	t.Run("keeps custom settings", func(t *testing.T) {
		store := NewMemoryStore(5*time.Minute, 50, 30*time.Minute)
		require.NotNil(t, store)
		assert.Equal(t, 5*time.Minute, store.gcInterval)
		assert.Equal(t, 50, store.sweepMaxKeys)
		assert.Equal(t, 30*time.Minute, store.sweepHorizon)
		store.Close()
	})
}

func TestMemoryStore_Increment(t *testing.T) {
	store := NewMemoryStore(time.Minute, 1000, time.Hour)
	defer store.Close()

	ctx := context.Background()

	t.Run("first increment returns 1", func(t *testing.T) {
		count, windowStart, err := store.Increment(ctx, "key1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.WithinDuration(t, time.Now(), windowStart, time.Second)
	})

	t.Run("subsequent increments increase count", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			count, _, err := store.Increment(ctx, "key2", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, count)
		}
	})

	t.Run("window start is stable within a window", func(t *testing.T) {
		_, first, err := store.Increment(ctx, "key3", time.Minute)
		require.NoError(t, err)

		_, second, err := store.Increment(ctx, "key3", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("different keys have independent counters", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			store.Increment(ctx, "keyA", time.Minute)
		}

		countA, _, err := store.Increment(ctx, "keyA", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(4), countA)

		countB, _, err := store.Increment(ctx, "keyB", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), countB)
	})
}

func TestMemoryStore_WindowReset(t *testing.T) {
	store := NewMemoryStore(time.Minute, 1000, time.Hour)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := store.Increment(ctx, "key", 30*time.Millisecond)
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)

	count, _, err := store.Increment(ctx, "key", 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "elapsed window restarts the counter")
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore(time.Minute, 1000, time.Hour)
	defer store.Close()

	ctx := context.Background()

	t.Run("unknown key returns zero", func(t *testing.T) {
		count, _, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("returns current count", func(t *testing.T) {
		store.Increment(ctx, "key", time.Minute)
		store.Increment(ctx, "key", time.Minute)

		count, _, err := store.Get(ctx, "key")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("elapsed window reads as zero", func(t *testing.T) {
		store.Increment(ctx, "elapsed", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		count, _, err := store.Get(ctx, "elapsed")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore(time.Minute, 1000, time.Hour)
	defer store.Close()

	ctx := context.Background()

	store.Increment(ctx, "key", time.Minute)
	require.NoError(t, store.Reset(ctx, "key"))

	count, _, err := store.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_Sweep(t *testing.T) {
	// Tiny sweepMaxKeys so the opportunistic sweep kicks in immediately.
	store := NewMemoryStore(time.Hour, 3, 40*time.Millisecond)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 4; i++ {
		store.Increment(ctx, fmt.Sprintf("old-%d", i), time.Minute)
	}
	require.Equal(t, 4, store.Len())

	time.Sleep(60 * time.Millisecond)

	// The next increment crosses the key threshold and sweeps entries past the
	// retention horizon, even though their own windows have not elapsed.
	store.Increment(ctx, "fresh", time.Minute)
	assert.Equal(t, 1, store.Len())

	count, _, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore(time.Minute, 1000, time.Hour)
	defer store.Close()

	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, _, err := store.Increment(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	count, _, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine), count)
}
