package reports

import (
	"context"
	"errors"
	"fmt"
)

// updateMaxAttempts bounds the compare-and-swap retry loop. Each attempt
// re-reads the current version, so a retry only loses to another writer that
// committed in between.
const updateMaxAttempts = 5

// Updater performs status transitions with optimistic concurrency control.
//
// No transition graph is enforced: the domain treats status as a flat enum and
// any valid status is reachable from any other. The version column is the only
// guard, and it is strictly serialized: N concurrent updates yield exactly N
// version increments with no duplicates and no gaps.
type Updater struct {
	store Store
}

// NewUpdater creates an updater over the given store.
func NewUpdater(store Store) *Updater {
	return &Updater{store: store}
}

// UpdateStatus moves the report to newStatus, recording the acting user.
// Returns ErrInvalidStatus for a status outside the enum (nothing is read or
// written in that case) and ErrNotFound for an unknown id.
func (u *Updater) UpdateStatus(ctx context.Context, id string, newStatus Status, actor string) (*Report, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	var lastErr error
	for attempt := 0; attempt < updateMaxAttempts; attempt++ {
		current, err := u.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		updated, err := u.store.UpdateStatus(ctx, id, newStatus, actor, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("status update of report %s did not settle after %d attempts: %w",
		id, updateMaxAttempts, lastErr)
}
