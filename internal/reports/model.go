// Package reports contains the incident report domain: validation, duplicate
// detection, optimistic status updates and aggregate statistics.
package reports

import (
	"encoding/json"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Statuses lists every valid status, in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Report is a single citizen-submitted incident record.
//
// Version starts at 1 and increases by exactly 1 on every status mutation.
// It never decreases and is the guard against lost concurrent updates.
type Report struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Category    string     `json:"category"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Description string     `json:"description"`
	PhotoURL    *string    `json:"photo_url,omitempty"`
	Status      Status     `json:"status"`
	Priority    string     `json:"priority"`
	Version     int        `json:"version"`
	VotesUp     int        `json:"votes_up"`
	VotesDown   int        `json:"votes_down"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	UpdatedBy   *string    `json:"updated_by,omitempty"`
}

// LocationGeoJSON renders the report location as a GeoJSON point.
func (r *Report) LocationGeoJSON() (json.RawMessage, error) {
	point := geom.NewPointFlat(geom.XY, []float64{r.Lng, r.Lat}).SetSRID(4326)
	return geojson.Marshal(point)
}

// Draft is the caller-supplied input for creating a report.
type Draft struct {
	UserID      string  `json:"user_id"`
	Category    string  `json:"category"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Description string  `json:"description"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	Priority    string  `json:"priority"`
}

// Validate checks the draft against the creation contract.
func (d *Draft) Validate() error {
	if d.Category == "" || d.UserID == "" {
		return ErrMissingFields
	}
	if d.Lat < -90 || d.Lat > 90 || d.Lng < -180 || d.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Filters narrows a report listing. Zero values mean "no filter".
type Filters struct {
	Category string
	Status   Status
	UserID   string
}

// NearbyReport is a report annotated with its distance from a query point.
type NearbyReport struct {
	Report
	DistanceMeters float64 `json:"distance_meters"`
}

// CategoryCount is the number of reports in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// UserCount is the number of reports submitted by one user.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Stats is the aggregate view over the full report set.
type Stats struct {
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	InProgress int             `json:"in_progress"`
	Resolved   int             `json:"resolved"`
	Rejected   int             `json:"rejected"`
	ByCategory []CategoryCount `json:"by_category"`
	TopUsers   []UserCount     `json:"top_users"`
}
