package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peoplecounter/internal/model"
)

const resultColumns = `id, session_id, location_id, filename, file_type, people_count, confidence,
	is_overcrowded, created_at, processing_time, image_path`

// ResultRepository implements repository.ResultRepository.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Create inserts a result and returns the persisted row. When the result belongs to a
// session, the session aggregates are updated in the same transaction; a closed or
// missing session rejects the result with model.ErrValidation.
func (r *ResultRepository) Create(ctx context.Context, in *model.AnalysisResultInput) (*model.AnalysisResult, error) {
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_results (session_id, location_id, filename, file_type, people_count,
			confidence, is_overcrowded, created_at, processing_time, image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullInt64(in.SessionID), nullInt64(in.LocationID), in.Filename, in.FileType, in.PeopleCount,
		in.Confidence, in.IsOvercrowded, now(), in.ProcessingTime, nullString(in.ImagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read result id: %w", err)
	}

	if in.SessionID != nil {
		// total_analyses is assigned last: MySQL evaluates SET clauses left to right.
		upd, err := tx.ExecContext(ctx, `
			UPDATE analysis_sessions SET
				avg_people_count = (avg_people_count * total_analyses + ?) / (total_analyses + 1),
				peak_people_count = CASE WHEN peak_people_count < ? THEN ? ELSE peak_people_count END,
				total_analyses = total_analyses + 1
			WHERE id = ? AND end_time IS NULL
		`, in.PeopleCount, in.PeopleCount, in.PeopleCount, *in.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to update session aggregates: %w", err)
		}
		if n, err := upd.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("session %d is closed or missing: %w", *in.SessionID, model.ErrValidation)
		}
	}

	result, err := scanResult(tx.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM analysis_results WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read back analysis result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit analysis result: %w", err)
	}
	return result, nil
}

// Get retrieves a result by its ID.
func (r *ResultRepository) Get(ctx context.Context, id int64) (*model.AnalysisResult, error) {
	result, err := scanResult(r.db.Conn().QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis result %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}
	return result, nil
}

// List returns results ordered by creation time, newest first.
func (r *ResultRepository) List(ctx context.Context, offset, limit uint) ([]model.AnalysisResult, error) {
	off, lim := pageArgs(offset, limit)
	return r.query(ctx, `
		SELECT `+resultColumns+` FROM analysis_results
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, lim, off)
}

// ListBySession returns the results recorded in a session, newest first.
func (r *ResultRepository) ListBySession(ctx context.Context, sessionID int64, offset, limit uint) ([]model.AnalysisResult, error) {
	off, lim := pageArgs(offset, limit)
	return r.query(ctx, `
		SELECT `+resultColumns+` FROM analysis_results
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, sessionID, lim, off)
}

// ListByLocation returns the results recorded at a location, newest first.
func (r *ResultRepository) ListByLocation(ctx context.Context, locationID int64, offset, limit uint) ([]model.AnalysisResult, error) {
	off, lim := pageArgs(offset, limit)
	return r.query(ctx, `
		SELECT `+resultColumns+` FROM analysis_results
		WHERE location_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, locationID, lim, off)
}

func (r *ResultRepository) query(ctx context.Context, query string, args ...any) ([]model.AnalysisResult, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis results: %w", err)
	}
	defer rows.Close()

	results := make([]model.AnalysisResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis result: %w", err)
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis results: %w", err)
	}
	return results, nil
}

func scanResult(row rowScanner) (*model.AnalysisResult, error) {
	var (
		res        model.AnalysisResult
		sessionID  sql.NullInt64
		locationID sql.NullInt64
		imagePath  sql.NullString
	)
	err := row.Scan(&res.ID, &sessionID, &locationID, &res.Filename, &res.FileType, &res.PeopleCount,
		&res.Confidence, &res.IsOvercrowded, &res.CreatedAt, &res.ProcessingTime, &imagePath)
	if err != nil {
		return nil, err
	}
	res.SessionID = int64Ptr(sessionID)
	res.LocationID = int64Ptr(locationID)
	res.ImagePath = stringPtr(imagePath)
	res.CreatedAt = res.CreatedAt.UTC()
	return &res, nil
}
