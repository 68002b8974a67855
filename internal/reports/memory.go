package reports

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process state. It backs single-process
// development setups and unit tests; data does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []*Report // insertion order, oldest first
	byID    map[string]*Report
	users   map[string]bool
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Report),
		users: make(map[string]bool),
	}
}

// Create validates the draft and stores a new pending report.
func (s *MemoryStore) Create(ctx context.Context, draft Draft) (*Report, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	priority := draft.Priority
	if priority == "" {
		priority = "medium"
	}

	report := &Report{
		ID:          uuid.NewString(),
		UserID:      draft.UserID,
		Category:    draft.Category,
		Lat:         draft.Lat,
		Lng:         draft.Lng,
		Description: draft.Description,
		PhotoURL:    draft.PhotoURL,
		Status:      StatusPending,
		Priority:    priority,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, report)
	s.byID[report.ID] = report

	copied := *report
	return &copied, nil
}

// Get returns the report with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *report
	return &copied, nil
}

// List returns reports matching the filters, newest first.
func (s *MemoryStore) List(ctx context.Context, filters Filters, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanLocked(limit, func(r *Report) bool {
		if filters.Category != "" && r.Category != filters.Category {
			return false
		}
		if filters.Status != "" && r.Status != filters.Status {
			return false
		}
		if filters.UserID != "" && r.UserID != filters.UserID {
			return false
		}
		return true
	}), nil
}

// ListByUser returns one user's reports, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultUserListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanLocked(limit, func(r *Report) bool {
		return r.UserID == userID
	}), nil
}

// ListRecent returns the duplicate-detection candidates, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, userID, category string, cutoff time.Time, limit int) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanLocked(limit, func(r *Report) bool {
		return r.UserID == userID && r.Category == category && !r.CreatedAt.Before(cutoff)
	}), nil
}

// All returns every report, newest first.
func (s *MemoryStore) All(ctx context.Context) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanLocked(len(s.reports), func(*Report) bool { return true }), nil
}

// UpdateStatus performs the conditional status write.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status, actor string, expectedVersion int) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if report.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	now := time.Now().UTC()
	report.Status = status
	report.Version++
	report.UpdatedAt = &now
	report.UpdatedBy = &actor

	copied := *report
	return &copied, nil
}

// Nearby returns reports within radiusMeters of the point, closest first.
func (s *MemoryStore) Nearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]NearbyReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []NearbyReport
	for _, r := range s.reports {
		distance := haversineMeters(lat, lng, r.Lat, r.Lng)
		if distance <= radiusMeters {
			matches = append(matches, NearbyReport{Report: *r, DistanceMeters: distance})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// EnsureUser records the reporter if not seen before.
func (s *MemoryStore) EnsureUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = true
	return nil
}

// Delete removes a report.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	for i, r := range s.reports {
		if r.ID == id {
			s.reports = append(s.reports[:i], s.reports[i+1:]...)
			break
		}
	}
	return nil
}

// scanLocked walks reports newest first and collects up to limit matches.
// Callers must hold s.mu.
func (s *MemoryStore) scanLocked(limit int, match func(*Report) bool) []Report {
	results := []Report{}
	for i := len(s.reports) - 1; i >= 0 && len(results) < limit; i-- {
		if match(s.reports[i]) {
			results = append(results, *s.reports[i])
		}
	}
	return results
}

const earthRadiusMeters = 6371000

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
