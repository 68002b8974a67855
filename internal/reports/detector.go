package reports

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DuplicateWindow is how long a spatially coincident same-category report
	// from the same user is rejected as a duplicate.
	DuplicateWindow = 5 * time.Minute

	// duplicateScanLimit bounds the candidate scan. Latency is favored over
	// completeness: under very high posting volume a duplicate past the 10
	// newest matches is missed.
	duplicateScanLimit = 10

	// coordinateThreshold is the per-axis proximity window, roughly 111m of
	// latitude. This is a rectangular window, not a true distance.
	coordinateThreshold = 0.001
)

// Detector finds near-identical recent reports before a new one is accepted.
type Detector struct {
	store          Store
	window         time.Duration
	onCheckFailure func()
}

// NewDetector creates a detector scanning the default duplicate window.
func NewDetector(store Store) *Detector {
	return &Detector{store: store, window: DuplicateWindow}
}

// OnCheckFailure registers a hook invoked whenever the candidate scan
// fails and the check falls open. Used for failure counters.
func (d *Detector) OnCheckFailure(fn func()) {
	d.onCheckFailure = fn
}

// IsDuplicate reports whether a recent report by the same user in the same
// category sits within the coordinate threshold of (lat, lng). The matched
// report is returned alongside.
//
// A store failure is treated as "not duplicate": losing the occasional
// duplicate check is preferred over rejecting legitimate reports.
func (d *Detector) IsDuplicate(ctx context.Context, userID, category string, lat, lng float64) (bool, *Report) {
	cutoff := time.Now().Add(-d.window)

	candidates, err := d.store.ListRecent(ctx, userID, category, cutoff, duplicateScanLimit)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("category", category).
			Msg("Duplicate check failed, treating report as new")
		if d.onCheckFailure != nil {
			d.onCheckFailure()
		}
		return false, nil
	}

	for i := range candidates {
		candidate := &candidates[i]
		if math.Abs(candidate.Lat-lat) < coordinateThreshold &&
			math.Abs(candidate.Lng-lng) < coordinateThreshold {
			return true, candidate
		}
	}

	return false, nil
}
