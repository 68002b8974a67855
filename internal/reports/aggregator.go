package reports

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// topUsersLimit caps the per-user ranking in statistics.
const topUsersLimit = 10

// Aggregator computes summary statistics over the full report set.
type Aggregator struct {
	store            Store
	onComputeFailure func()
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// OnComputeFailure registers a hook invoked whenever the scan fails and
// an empty result is served. Used for failure counters.
func (a *Aggregator) OnComputeFailure(fn func()) {
	a.onComputeFailure = fn
}

// Compute scans all reports once and accumulates counts by status, category
// and user. Per-user counts are ranked by count descending and truncated to
// the top 10, ties kept in scan order.
//
// A scan failure yields an empty result rather than an error, consistent with
// the fail-open policy on read paths.
func (a *Aggregator) Compute(ctx context.Context) *Stats {
	all, err := a.store.All(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Statistics scan failed, returning empty result")
		if a.onComputeFailure != nil {
			a.onComputeFailure()
		}
		return emptyStats()
	}

	stats := emptyStats()
	stats.Total = len(all)

	categoryIndex := map[string]int{}
	userIndex := map[string]int{}

	for i := range all {
		r := &all[i]

		switch r.Status {
		case StatusPending:
			stats.Pending++
		case StatusInProgress:
			stats.InProgress++
		case StatusResolved:
			stats.Resolved++
		case StatusRejected:
			stats.Rejected++
		}

		if idx, ok := categoryIndex[r.Category]; ok {
			stats.ByCategory[idx].Count++
		} else {
			categoryIndex[r.Category] = len(stats.ByCategory)
			stats.ByCategory = append(stats.ByCategory, CategoryCount{Category: r.Category, Count: 1})
		}

		if idx, ok := userIndex[r.UserID]; ok {
			stats.TopUsers[idx].Count++
		} else {
			userIndex[r.UserID] = len(stats.TopUsers)
			stats.TopUsers = append(stats.TopUsers, UserCount{UserID: r.UserID, Count: 1})
		}
	}

	sort.SliceStable(stats.TopUsers, func(i, j int) bool {
		return stats.TopUsers[i].Count > stats.TopUsers[j].Count
	})
	if len(stats.TopUsers) > topUsersLimit {
		stats.TopUsers = stats.TopUsers[:topUsersLimit]
	}

	return stats
}

func emptyStats() *Stats {
	return &Stats{
		ByCategory: []CategoryCount{},
		TopUsers:   []UserCount{},
	}
}
