package reports

import (
	"context"
	"time"
)

// Store is the persistence contract for reports.
//
// Two implementations exist: PostgresStore for deployments and MemoryStore for
// single-process development and tests, selected by configuration the same way
// as the rate limit backends.
type Store interface {
	// Create validates the draft, assigns an id, and persists the report with
	// status=pending and version=1. Returns ErrMissingFields or
	// ErrInvalidCoordinates on invalid input.
	Create(ctx context.Context, draft Draft) (*Report, error)

	// Get returns the report with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Report, error)

	// List returns reports matching the filters, newest first, at most limit.
	List(ctx context.Context, filters Filters, limit int) ([]Report, error)

	// ListByUser returns one user's reports, newest first, at most limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]Report, error)

	// ListRecent returns reports by userID in category created at or after
	// cutoff, newest first, at most limit. This is the duplicate-detection scan.
	ListRecent(ctx context.Context, userID, category string, cutoff time.Time, limit int) ([]Report, error)

	// All returns every report. Used by the statistics aggregator.
	All(ctx context.Context) ([]Report, error)

	// UpdateStatus performs a conditional write: it sets status, updated_at and
	// updated_by and increments version, but only if the stored version still
	// equals expectedVersion. Returns ErrVersionConflict when a concurrent
	// update got there first, ErrNotFound when the report does not exist.
	UpdateStatus(ctx context.Context, id string, status Status, actor string, expectedVersion int) (*Report, error)

	// Nearby returns reports within radiusMeters of the given point, closest
	// first, at most limit.
	Nearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]NearbyReport, error)

	// EnsureUser records the reporter if not seen before.
	EnsureUser(ctx context.Context, userID string) error

	// Delete removes a report. Escape hatch for development and tests only;
	// reports are never deleted in normal operation.
	Delete(ctx context.Context, id string) error
}

// DefaultListLimit caps listings when the caller does not ask for a limit.
const DefaultListLimit = 50

// DefaultUserListLimit caps per-user listings.
const DefaultUserListLimit = 100
