package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"peoplecounter/internal/dto"
	"peoplecounter/internal/model"
)

// CreateLocation registers a monitored location. Codes are unique.
func (m *Manager) CreateLocation(ctx context.Context, req dto.CreateLocationRequest) (*model.Location, error) {
	loc := &model.Location{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		MaxCapacity: req.MaxCapacity,
		Code:        strings.TrimSpace(req.Code),
	}
	if loc.Name == "" || loc.Code == "" {
		return nil, fmt.Errorf("name and location_code are required: %w", model.ErrValidation)
	}
	if loc.MaxCapacity < 0 {
		return nil, fmt.Errorf("max_capacity must not be negative: %w", model.ErrValidation)
	}

	if _, err := m.stores.Locations.GetByCode(ctx, loc.Code); err == nil {
		return nil, fmt.Errorf("location code %q already exists: %w", loc.Code, model.ErrValidation)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	created, err := m.stores.Locations.Create(ctx, loc)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Created location %d (%s)", created.ID, created.Code)
	return created, nil
}

// ListLocations returns every location.
func (m *Manager) ListLocations(ctx context.Context) ([]model.Location, error) {
	return m.stores.Locations.List(ctx)
}

// GetLocation returns one location or model.ErrNotFound.
func (m *Manager) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	return m.stores.Locations.Get(ctx, id)
}

// LocationResults returns the results recorded at a location, newest first.
func (m *Manager) LocationResults(ctx context.Context, id int64, skip, limit uint) ([]model.AnalysisResult, error) {
	if _, err := m.stores.Locations.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.stores.Results.ListByLocation(ctx, id, skip, limit)
}

// LocationSessions returns the sessions of a location, newest first.
func (m *Manager) LocationSessions(ctx context.Context, id int64) ([]model.AnalysisSession, error) {
	if _, err := m.stores.Locations.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.stores.Sessions.ListByLocation(ctx, id)
}

// StartSession opens a session at an existing location.
func (m *Manager) StartSession(ctx context.Context, req dto.CreateSessionRequest) (*model.AnalysisSession, error) {
	if _, err := m.stores.Locations.Get(ctx, req.LocationID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("unknown location %d: %w", req.LocationID, model.ErrValidation)
		}
		return nil, err
	}

	session, err := m.stores.Sessions.Create(ctx, &model.AnalysisSession{
		LocationID: req.LocationID,
		Name:       strings.TrimSpace(req.Name),
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Started session %d at location %d", session.ID, session.LocationID)
	return session, nil
}

// GetSession returns one session or model.ErrNotFound.
func (m *Manager) GetSession(ctx context.Context, id int64) (*model.AnalysisSession, error) {
	return m.stores.Sessions.Get(ctx, id)
}

// CloseSession ends a session. Further analyses cannot be attached to it.
func (m *Manager) CloseSession(ctx context.Context, id int64) (*model.AnalysisSession, error) {
	session, err := m.stores.Sessions.Close(ctx, id)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Closed session %d after %d analyses", session.ID, session.TotalAnalyses)
	return session, nil
}

// SessionResults returns the results of a session, newest first.
func (m *Manager) SessionResults(ctx context.Context, id int64, skip, limit uint) ([]model.AnalysisResult, error) {
	if _, err := m.stores.Sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.stores.Results.ListBySession(ctx, id, skip, limit)
}
