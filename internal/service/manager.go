package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"peoplecounter/internal/config"
	"peoplecounter/internal/dto"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/metrics"
	"peoplecounter/internal/model"
	"peoplecounter/internal/repository"
	"peoplecounter/internal/service/pipeline"
)

// ResultsURLPrefix is the public path annotated images are served under.
const ResultsURLPrefix = "/static/results/"

// DefaultListLimit is the page size used when the caller gives none.
const DefaultListLimit = 100

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// Analyzer runs the analysis pipeline on a stored file.
type Analyzer interface {
	Analyze(ctx context.Context, filePath string, isVideo bool, token string) (*pipeline.Outcome, error)
}

// Uploads stores incoming request bodies.
type Uploads interface {
	Save(body io.Reader, token, ext string) (string, func(), error)
}

// Broadcaster pushes messages to live feed viewers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Stores groups the repositories used by the manager.
type Stores struct {
	Results   repository.ResultRepository
	Locations repository.LocationRepository
	Sessions  repository.SessionRepository
}

// AnalyzeRequest is one uploaded file plus optional placement.
type AnalyzeRequest struct {
	Filename   string
	Body       io.Reader
	LocationID *int64
	SessionID  *int64
}

// Manager handles analyze requests end to end and answers result queries.
type Manager struct {
	analyzer Analyzer
	uploads  Uploads
	stores   Stores
	live     Broadcaster
	metrics  *metrics.AnalysisMetrics
	results  *cache.Cache
	slots    *semaphore.Weighted
	logger   *logger.Logger
}

// NewManager creates a manager. live and m may be nil.
func NewManager(analyzer Analyzer, uploads Uploads, stores Stores, live Broadcaster, m *metrics.AnalysisMetrics, cfg *config.Config, logger *logger.Logger) *Manager {
	slots := int64(cfg.MaxConcurrentAnalyses)
	if slots <= 0 {
		slots = 1
	}

	manager := &Manager{
		analyzer: analyzer,
		uploads:  uploads,
		stores:   stores,
		live:     live,
		metrics:  m,
		results:  cache.New(cfg.ResultCacheTTL, 2*cfg.ResultCacheTTL),
		slots:    semaphore.NewWeighted(slots),
		logger:   logger,
	}

	manager.logger.Info("Manager started - %d concurrent analyses", slots)
	return manager
}

// FileType classifies a filename by extension, case-insensitively.
func FileType(filename string) string {
	if videoExtensions[strings.ToLower(filepath.Ext(filename))] {
		return model.FileTypeVideo
	}
	return model.FileTypeImage
}

// ImageURL returns the public URL of an annotated image.
func ImageURL(path string) string {
	return ResultsURLPrefix + filepath.Base(path)
}

// Analyze stores the upload, runs the pipeline and persists the outcome. The uploaded
// file is removed before returning on every path; on failure no result is persisted
// and no annotated image is kept.
func (m *Manager) Analyze(ctx context.Context, req AnalyzeRequest) (*dto.AnalysisResponse, error) {
	fileType := FileType(req.Filename)

	resp, err := m.analyze(ctx, req, fileType)
	if err != nil {
		m.metrics.RecordFailure(fileType, err)
		m.logger.Error("Analysis of %q failed: %v", req.Filename, err)
		return nil, err
	}
	return resp, nil
}

func (m *Manager) analyze(ctx context.Context, req AnalyzeRequest, fileType string) (*dto.AnalysisResponse, error) {
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("missing filename: %w", model.ErrValidation)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("missing file: %w", model.ErrValidation)
	}

	location, sessionID, err := m.resolvePlacement(ctx, req.LocationID, req.SessionID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	path, cleanup, err := m.uploads.Save(req.Body, token, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for analysis slot: %w", err)
	}
	done := m.metrics.AnalysisStarted()
	outcome, err := m.analyzer.Analyze(ctx, path, fileType == model.FileTypeVideo, token)
	done()
	m.slots.Release(1)
	if err != nil {
		return nil, err
	}

	input := &model.AnalysisResultInput{
		Filename:       filename,
		FileType:       fileType,
		PeopleCount:    outcome.PeopleCount,
		Confidence:     outcome.Confidence,
		ProcessingTime: outcome.ProcessingTime,
		ImagePath:      &outcome.AnnotatedImagePath,
		SessionID:      sessionID,
	}
	if location != nil {
		input.LocationID = &location.ID
		input.IsOvercrowded = location.Overcrowded(outcome.PeopleCount)
	}

	result, err := m.stores.Results.Create(ctx, input)
	if err != nil {
		if rmErr := os.Remove(outcome.AnnotatedImagePath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Error("Failed to remove annotated image %s: %v", outcome.AnnotatedImagePath, rmErr)
		}
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	imageURL := ImageURL(outcome.AnnotatedImagePath)
	m.results.SetDefault(cacheKey(result.ID), result)
	m.metrics.RecordSuccess(fileType, result.PeopleCount, result.ProcessingTime, result.IsOvercrowded)
	m.publish(result, imageURL)

	if result.IsOvercrowded {
		m.logger.Warning("Location %d over capacity: %d people (max %d)", location.ID, result.PeopleCount, location.MaxCapacity)
	}
	m.logger.Info("Saved result %d for %s: %d people", result.ID, filename, result.PeopleCount)

	return &dto.AnalysisResponse{
		Success:        true,
		PeopleCount:    result.PeopleCount,
		ProcessingTime: result.ProcessingTime,
		ResultID:       result.ID,
		ImageURL:       &imageURL,
	}, nil
}

// resolvePlacement validates the optional location and session of a request. A session
// implies its location; an explicit location must match it.
func (m *Manager) resolvePlacement(ctx context.Context, locationID, sessionID *int64) (*model.Location, *int64, error) {
	if sessionID != nil {
		session, err := m.stores.Sessions.Get(ctx, *sessionID)
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, fmt.Errorf("unknown session %d: %w", *sessionID, model.ErrValidation)
		}
		if err != nil {
			return nil, nil, err
		}
		if session.EndTime != nil {
			return nil, nil, fmt.Errorf("session %d is closed: %w", session.ID, model.ErrValidation)
		}
		if locationID != nil && *locationID != session.LocationID {
			return nil, nil, fmt.Errorf("session %d does not belong to location %d: %w", session.ID, *locationID, model.ErrValidation)
		}
		locationID = &session.LocationID
	}

	if locationID == nil {
		return nil, sessionID, nil
	}

	location, err := m.stores.Locations.Get(ctx, *locationID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil, fmt.Errorf("unknown location %d: %w", *locationID, model.ErrValidation)
	}
	if err != nil {
		return nil, nil, err
	}
	return location, sessionID, nil
}

func (m *Manager) publish(result *model.AnalysisResult, imageURL string) {
	if m.live == nil {
		return
	}

	msg, err := json.Marshal(dto.LiveEvent{
		ResultID:      result.ID,
		Filename:      result.Filename,
		FileType:      result.FileType,
		PeopleCount:   result.PeopleCount,
		Confidence:    result.Confidence,
		IsOvercrowded: result.IsOvercrowded,
		LocationID:    result.LocationID,
		SessionID:     result.SessionID,
		ImageURL:      &imageURL,
		CreatedAt:     result.CreatedAt,
	})
	if err != nil {
		m.logger.Error("Failed to encode live event: %v", err)
		return
	}
	m.live.Broadcast(msg)
}

// ListResults returns results newest first.
func (m *Manager) ListResults(ctx context.Context, skip, limit uint) ([]model.AnalysisResult, error) {
	return m.stores.Results.List(ctx, skip, limit)
}

// GetResult returns one result or model.ErrNotFound. Results never change once stored,
// so lookups are cached.
func (m *Manager) GetResult(ctx context.Context, id int64) (*model.AnalysisResult, error) {
	key := cacheKey(id)
	if cached, ok := m.results.Get(key); ok {
		return cached.(*model.AnalysisResult), nil
	}

	result, err := m.stores.Results.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.results.SetDefault(key, result)
	return result, nil
}

func cacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
