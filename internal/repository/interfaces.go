package repository

import (
	"context"

	"peoplecounter/internal/model"
)

// ResultRepository defines the interface for analysis result operations.
// Lookups of missing rows return model.ErrNotFound.
type ResultRepository interface {
	// Create operations
	Create(ctx context.Context, in *model.AnalysisResultInput) (*model.AnalysisResult, error)

	// Read operations, newest first
	Get(ctx context.Context, id int64) (*model.AnalysisResult, error)
	List(ctx context.Context, offset, limit uint) ([]model.AnalysisResult, error)
	ListBySession(ctx context.Context, sessionID int64, offset, limit uint) ([]model.AnalysisResult, error)
	ListByLocation(ctx context.Context, locationID int64, offset, limit uint) ([]model.AnalysisResult, error)
}

// LocationRepository defines the interface for location operations.
type LocationRepository interface {
	Create(ctx context.Context, loc *model.Location) (*model.Location, error)
	Get(ctx context.Context, id int64) (*model.Location, error)
	GetByCode(ctx context.Context, code string) (*model.Location, error)
	List(ctx context.Context) ([]model.Location, error)

	// Delete cascades to the location's sessions and results.
	Delete(ctx context.Context, id int64) error
}

// SessionRepository defines the interface for analysis session operations.
type SessionRepository interface {
	Create(ctx context.Context, s *model.AnalysisSession) (*model.AnalysisSession, error)
	Get(ctx context.Context, id int64) (*model.AnalysisSession, error)
	ListByLocation(ctx context.Context, locationID int64) ([]model.AnalysisSession, error)
	Close(ctx context.Context, id int64) (*model.AnalysisSession, error)

	// Delete cascades to the session's results.
	Delete(ctx context.Context, id int64) error
}
