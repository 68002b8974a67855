package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mingafix/mingafix/internal/database"
)

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	db *database.Connection
}

// NewPostgresStore creates a report store backed by the given connection.
func NewPostgresStore(db *database.Connection) *PostgresStore {
	return &PostgresStore{db: db}
}

const reportColumns = `id, user_id, category, lat, lng, description, photo_url,
	status, priority, version, votes_up, votes_down, created_at, updated_at, updated_by`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.UserID, &r.Category, &r.Lat, &r.Lng, &r.Description,
		&r.PhotoURL, &r.Status, &r.Priority, &r.Version, &r.VotesUp, &r.VotesDown,
		&r.CreatedAt, &r.UpdatedAt, &r.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReports(rows pgx.Rows) ([]Report, error) {
	defer rows.Close()

	results := []Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// Create validates the draft and inserts a new pending report.
func (s *PostgresStore) Create(ctx context.Context, draft Draft) (*Report, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	priority := draft.Priority
	if priority == "" {
		priority = "medium"
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO reports (id, user_id, category, lat, lng, location, description, photo_url, priority)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($5, $4), 4326)::geography, $6, $7, $8)
		RETURNING `+reportColumns,
		uuid.NewString(), draft.UserID, draft.Category, draft.Lat, draft.Lng,
		draft.Description, draft.PhotoURL, priority)

	report, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	return report, nil
}

// Get returns the report with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)

	report, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// List returns reports matching the filters, newest first.
func (s *PostgresStore) List(ctx context.Context, filters Filters, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var conditions []string
	var args []interface{}

	if filters.Category != "" {
		args = append(args, filters.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.UserID != "" {
		args = append(args, filters.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return collectReports(rows)
}

// ListByUser returns one user's reports, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultUserListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports by user: %w", err)
	}
	return collectReports(rows)
}

// ListRecent returns the duplicate-detection candidates, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, userID, category string, cutoff time.Time, limit int) ([]Report, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE user_id = $1 AND category = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4`, userID, category, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reports: %w", err)
	}
	return collectReports(rows)
}

// All returns every report, newest first.
func (s *PostgresStore) All(ctx context.Context) ([]Report, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}
	return collectReports(rows)
}

// UpdateStatus performs the conditional status write. The WHERE clause on
// version makes the read-modify-write a compare-and-swap: of two concurrent
// updates against the same observed version, exactly one matches a row.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, actor string, expectedVersion int) (*Report, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE reports
		SET status = $2, version = version + 1, updated_at = NOW(), updated_by = $3
		WHERE id = $1 AND version = $4
		RETURNING `+reportColumns,
		id, status, actor, expectedVersion)

	report, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a stale version from a missing report.
		var exists bool
		checkErr := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return nil, fmt.Errorf("failed to check report existence: %w", checkErr)
		}
		if exists {
			return nil, ErrVersionConflict
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update report status: %w", err)
	}
	return report, nil
}

// Nearby returns reports within radiusMeters of the point, closest first.
func (s *PostgresStore) Nearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]NearbyReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+reportColumns+`,
			ST_Distance(location, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_meters
		FROM reports
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		ORDER BY distance_meters ASC
		LIMIT $4`, lat, lng, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby reports: %w", err)
	}
	defer rows.Close()

	results := []NearbyReport{}
	for rows.Next() {
		var r NearbyReport
		err := rows.Scan(&r.ID, &r.UserID, &r.Category, &r.Lat, &r.Lng, &r.Description,
			&r.PhotoURL, &r.Status, &r.Priority, &r.Version, &r.VotesUp, &r.VotesDown,
			&r.CreatedAt, &r.UpdatedAt, &r.UpdatedBy, &r.DistanceMeters)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// EnsureUser records the reporter if not seen before.
func (s *PostgresStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reporters (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure reporter exists: %w", err)
	}
	return nil
}

// Delete removes a report.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
