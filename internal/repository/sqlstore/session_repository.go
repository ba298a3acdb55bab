package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"peoplecounter/internal/model"
)

const sessionColumns = `id, location_id, session_name, start_time, end_time, total_analyses,
	avg_people_count, peak_people_count, created_at`

// SessionRepository implements repository.SessionRepository.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create opens a session at a location. A zero StartTime defaults to now.
func (r *SessionRepository) Create(ctx context.Context, s *model.AnalysisSession) (*model.AnalysisSession, error) {
	created := now()
	start := s.StartTime.UTC().Truncate(time.Microsecond)
	if s.StartTime.IsZero() {
		start = created
	}

	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO analysis_sessions (location_id, session_name, start_time, created_at)
		VALUES (?, ?, ?, ?)
	`, s.LocationID, s.Name, start, created)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read session id: %w", err)
	}
	return r.Get(ctx, id)
}

// Get retrieves a session by its ID.
func (r *SessionRepository) Get(ctx context.Context, id int64) (*model.AnalysisSession, error) {
	s, err := scanSession(r.db.Conn().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListByLocation returns the sessions of a location, most recent first.
func (r *SessionRepository) ListByLocation(ctx context.Context, locationID int64) ([]model.AnalysisSession, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM analysis_sessions
		WHERE location_id = ?
		ORDER BY start_time DESC, id DESC
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.AnalysisSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Close sets the session end time. Closing an already closed session keeps its end time.
func (r *SessionRepository) Close(ctx context.Context, id int64) (*model.AnalysisSession, error) {
	if _, err := r.db.Conn().ExecContext(ctx,
		`UPDATE analysis_sessions SET end_time = ? WHERE id = ? AND end_time IS NULL`, now(), id); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	return r.Get(ctx, id)
}

// Delete removes a session; its results are removed by cascade.
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM analysis_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanSession(row rowScanner) (*model.AnalysisSession, error) {
	var (
		s   model.AnalysisSession
		end sql.NullTime
	)
	err := row.Scan(&s.ID, &s.LocationID, &s.Name, &s.StartTime, &end, &s.TotalAnalyses,
		&s.AvgPeopleCount, &s.PeakPeopleCount, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time.UTC()
		s.EndTime = &t
	}
	s.StartTime = s.StartTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
