package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peoplecounter/internal/model"
)

const locationColumns = `id, name, description, max_capacity, location_code, created_at`

// LocationRepository implements repository.LocationRepository.
type LocationRepository struct {
	db *DB
}

// NewLocationRepository creates a new location repository.
func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create inserts a location. The location code must be unique.
func (r *LocationRepository) Create(ctx context.Context, loc *model.Location) (*model.Location, error) {
	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO locations (name, description, max_capacity, location_code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, loc.Name, loc.Description, loc.MaxCapacity, loc.Code, now())
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("location code %q already exists: %w", loc.Code, model.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert location: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read location id: %w", err)
	}
	return r.Get(ctx, id)
}

// Get retrieves a location by its ID.
func (r *LocationRepository) Get(ctx context.Context, id int64) (*model.Location, error) {
	loc, err := scanLocation(r.db.Conn().QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

// GetByCode retrieves a location by its unique code.
func (r *LocationRepository) GetByCode(ctx context.Context, code string) (*model.Location, error) {
	loc, err := scanLocation(r.db.Conn().QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE location_code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %q: %w", code, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

// List returns all locations ordered by name.
func (r *LocationRepository) List(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]model.Location, 0)
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, *loc)
	}
	return locations, rows.Err()
}

// Delete removes a location; sessions and results referencing it are removed by cascade.
func (r *LocationRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanLocation(row rowScanner) (*model.Location, error) {
	var loc model.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Description, &loc.MaxCapacity, &loc.Code, &loc.CreatedAt); err != nil {
		return nil, err
	}
	loc.CreatedAt = loc.CreatedAt.UTC()
	return &loc, nil
}
