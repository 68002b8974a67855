package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_IsDuplicate(t *testing.T) {
	ctx := context.Background()

	base := Draft{UserID: "user-1", Category: "pothole", Lat: -0.8131, Lng: -77.7172}

	t.Run("coincident recent report is a duplicate", func(t *testing.T) {
		store := NewMemoryStore()
		existing := mustCreate(t, store, base)

		dup, match := NewDetector(store).IsDuplicate(ctx, "user-1", "pothole", -0.81305, -77.71715)
		assert.True(t, dup)
		require.NotNil(t, match)
		assert.Equal(t, existing.ID, match.ID)
	})

	t.Run("different category is not a duplicate", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		dup, match := NewDetector(store).IsDuplicate(ctx, "user-1", "lighting", base.Lat, base.Lng)
		assert.False(t, dup)
		assert.Nil(t, match)
	})

	t.Run("different user is not a duplicate", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		dup, _ := NewDetector(store).IsDuplicate(ctx, "user-2", "pothole", base.Lat, base.Lng)
		assert.False(t, dup)
	})

	t.Run("latitude delta at threshold is not a duplicate", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		detector := NewDetector(store)

		dup, _ := detector.IsDuplicate(ctx, "user-1", "pothole", base.Lat+0.001, base.Lng)
		assert.False(t, dup, "threshold is strict: delta of exactly 0.001 admits")

		dup, _ = detector.IsDuplicate(ctx, "user-1", "pothole", base.Lat, base.Lng+0.0015)
		assert.False(t, dup, "exceeding the longitude delta admits")
	})

	t.Run("both axes must be within threshold", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		dup, _ := NewDetector(store).IsDuplicate(ctx, "user-1", "pothole", base.Lat+0.0005, base.Lng+0.5)
		assert.False(t, dup)
	})

	t.Run("report outside the time window is not a duplicate", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		detector := NewDetector(store)
		detector.window = 10 * time.Millisecond
		time.Sleep(20 * time.Millisecond)

		dup, _ := detector.IsDuplicate(ctx, "user-1", "pothole", base.Lat, base.Lng)
		assert.False(t, dup)
	})

	t.Run("returns the first match in recency order", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)
		newest := mustCreate(t, store, base)

		dup, match := NewDetector(store).IsDuplicate(ctx, "user-1", "pothole", base.Lat, base.Lng)
		assert.True(t, dup)
		require.NotNil(t, match)
		assert.Equal(t, newest.ID, match.ID)
	})

	t.Run("fails open on store errors", func(t *testing.T) {
		detector := NewDetector(failingReportStore{})

		failures := 0
		detector.OnCheckFailure(func() { failures++ })

		dup, match := detector.IsDuplicate(ctx, "user-1", "pothole", base.Lat, base.Lng)
		assert.False(t, dup)
		assert.Nil(t, match)
		assert.Equal(t, 1, failures)
	})

	t.Run("hook is not invoked on a clean scan", func(t *testing.T) {
		store := NewMemoryStore()
		mustCreate(t, store, base)

		detector := NewDetector(store)
		failures := 0
		detector.OnCheckFailure(func() { failures++ })

		detector.IsDuplicate(ctx, "user-1", "pothole", base.Lat, base.Lng)
		assert.Zero(t, failures)
	})
}

// failingReportStore errors on every operation, for fail-open tests.
type failingReportStore struct{}

var errStoreDown = errors.New("store down")

func (failingReportStore) Create(context.Context, Draft) (*Report, error) { return nil, errStoreDown }
func (failingReportStore) Get(context.Context, string) (*Report, error)  { return nil, errStoreDown }
func (failingReportStore) List(context.Context, Filters, int) ([]Report, error) {
	return nil, errStoreDown
}
func (failingReportStore) ListByUser(context.Context, string, int) ([]Report, error) {
	return nil, errStoreDown
}
func (failingReportStore) ListRecent(context.Context, string, string, time.Time, int) ([]Report, error) {
	return nil, errStoreDown
}
func (failingReportStore) All(context.Context) ([]Report, error) { return nil, errStoreDown }
func (failingReportStore) UpdateStatus(context.Context, string, Status, string, int) (*Report, error) {
	return nil, errStoreDown
}
func (failingReportStore) Nearby(context.Context, float64, float64, float64, int) ([]NearbyReport, error) {
	return nil, errStoreDown
}
func (failingReportStore) EnsureUser(context.Context, string) error { return errStoreDown }
func (failingReportStore) Delete(context.Context, string) error     { return errStoreDown }
