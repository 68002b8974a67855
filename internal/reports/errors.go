package reports

import "errors"

var (
	// ErrMissingFields indicates a create draft without category, user or coordinates.
	ErrMissingFields = errors.New("missing required fields: category, lat, lng")

	// ErrInvalidCoordinates indicates a latitude or longitude outside the valid range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrNotFound indicates the requested report does not exist.
	ErrNotFound = errors.New("report not found")

	// ErrInvalidStatus indicates a status outside the fixed enum.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrVersionConflict indicates a conditional write lost the race against a
	// concurrent update. Callers retry with the fresh version.
	ErrVersionConflict = errors.New("report version conflict")
)
