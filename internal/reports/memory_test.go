package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, store Store, draft Draft) *Report {
	t.Helper()
	report, err := store.Create(context.Background(), draft)
	require.NoError(t, err)
	return report
}

func TestMemoryStore_Create(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("assigns id, pending status and version 1", func(t *testing.T) {
		report, err := store.Create(ctx, Draft{
			UserID:      "user-1",
			Category:    "pothole",
			Lat:         -0.8131,
			Lng:         -77.7172,
			Description: "deep pothole on the main road",
		})
		require.NoError(t, err)

		assert.NotEmpty(t, report.ID)
		assert.Equal(t, StatusPending, report.Status)
		assert.Equal(t, 1, report.Version)
		assert.Equal(t, "medium", report.Priority)
		assert.Zero(t, report.VotesUp)
		assert.Zero(t, report.VotesDown)
		assert.WithinDuration(t, time.Now(), report.CreatedAt, time.Second)
		assert.Nil(t, report.UpdatedAt)
	})

	t.Run("keeps explicit priority", func(t *testing.T) {
		report := mustCreate(t, store, Draft{
			UserID: "user-1", Category: "lighting", Lat: 1, Lng: 1, Priority: "high",
		})
		assert.Equal(t, "high", report.Priority)
	})

	t.Run("rejects invalid drafts", func(t *testing.T) {
		_, err := store.Create(ctx, Draft{UserID: "user-1", Lat: 1, Lng: 1})
		assert.ErrorIs(t, err, ErrMissingFields)

		_, err = store.Create(ctx, Draft{UserID: "user-1", Category: "pothole", Lat: 91, Lng: 1})
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
	})
}

func TestMemoryStore_GetAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	report := mustCreate(t, store, Draft{UserID: "user-1", Category: "pothole", Lat: 1, Lng: 1})

	got, err := store.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, report.ID))
	_, err = store.Get(ctx, report.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, report.ID), ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := mustCreate(t, store, Draft{UserID: "user-1", Category: "pothole", Lat: 1, Lng: 1})
	second := mustCreate(t, store, Draft{UserID: "user-2", Category: "lighting", Lat: 2, Lng: 2})
	third := mustCreate(t, store, Draft{UserID: "user-1", Category: "pothole", Lat: 3, Lng: 3})

	t.Run("newest first", func(t *testing.T) {
		all, err := store.List(ctx, Filters{}, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID)
		assert.Equal(t, second.ID, all[1].ID)
		assert.Equal(t, first.ID, all[2].ID)
	})

	t.Run("category filter", func(t *testing.T) {
		potholes, err := store.List(ctx, Filters{Category: "pothole"}, 0)
		require.NoError(t, err)
		assert.Len(t, potholes, 2)
	})

	t.Run("user filter", func(t *testing.T) {
		mine, err := store.List(ctx, Filters{UserID: "user-2"}, 0)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, second.ID, mine[0].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		_, err := store.UpdateStatus(ctx, first.ID, StatusResolved, "admin", 1)
		require.NoError(t, err)

		resolved, err := store.List(ctx, Filters{Status: StatusResolved}, 0)
		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, first.ID, resolved[0].ID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		limited, err := store.List(ctx, Filters{}, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("list by user", func(t *testing.T) {
		mine, err := store.ListByUser(ctx, "user-1", 0)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, third.ID, mine[0].ID)
	})
}

func TestMemoryStore_ListRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	report := mustCreate(t, store, Draft{UserID: "user-1", Category: "pothole", Lat: 1, Lng: 1})
	mustCreate(t, store, Draft{UserID: "user-1", Category: "lighting", Lat: 1, Lng: 1})
	mustCreate(t, store, Draft{UserID: "user-2", Category: "pothole", Lat: 1, Lng: 1})

	t.Run("matches user and category since cutoff", func(t *testing.T) {
		recent, err := store.ListRecent(ctx, "user-1", "pothole", time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, report.ID, recent[0].ID)
	})

	t.Run("cutoff in the future excludes everything", func(t *testing.T) {
		recent, err := store.ListRecent(ctx, "user-1", "pothole", time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	report := mustCreate(t, store, Draft{UserID: "user-1", Category: "pothole", Lat: 1, Lng: 1})

	t.Run("matching version commits", func(t *testing.T) {
		updated, err := store.UpdateStatus(ctx, report.ID, StatusInProgress, "admin-1", 1)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, updated.Status)
		assert.Equal(t, 2, updated.Version)
		require.NotNil(t, updated.UpdatedAt)
		require.NotNil(t, updated.UpdatedBy)
		assert.Equal(t, "admin-1", *updated.UpdatedBy)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := store.UpdateStatus(ctx, report.ID, StatusResolved, "admin-2", 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.UpdateStatus(ctx, "missing", StatusResolved, "admin-2", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore_Nearby(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	near := mustCreate(t, store, Draft{UserID: "u", Category: "pothole", Lat: -0.8131, Lng: -77.7172})
	// ~550m north
	mid := mustCreate(t, store, Draft{UserID: "u", Category: "pothole", Lat: -0.8081, Lng: -77.7172})
	// ~111km north, far outside any city radius
	mustCreate(t, store, Draft{UserID: "u", Category: "pothole", Lat: 0.1869, Lng: -77.7172})

	results, err := store.Nearby(ctx, -0.8131, -77.7172, 5000, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, near.ID, results[0].ID)
	assert.InDelta(t, 0, results[0].DistanceMeters, 1)
	assert.Equal(t, mid.ID, results[1].ID)
	assert.InDelta(t, 555, results[1].DistanceMeters, 30)
}
