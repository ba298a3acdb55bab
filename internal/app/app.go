package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"peoplecounter/internal/config"
	"peoplecounter/internal/handler"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/metrics"
	"peoplecounter/internal/model"
	"peoplecounter/internal/repository/sqlstore"
	"peoplecounter/internal/routes"
	"peoplecounter/internal/service"
	"peoplecounter/internal/service/ai"
	"peoplecounter/internal/service/media"
	"peoplecounter/internal/service/pipeline"
	"peoplecounter/internal/service/storage"
	"peoplecounter/internal/service/websocket"
)

type detector interface {
	pipeline.Detector
	Close() error
}

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlstore.DB
	detector   detector
	hubService *websocket.HubService
	uploads    *storage.UploadStore
	manager    *service.Manager
	server     *http.Server
}

// NewApp wires every component. It fails when the database or the detection model
// cannot be loaded.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.UploadDir, cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	det, err := newDetector(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		det.Close()
		db.Close()
		return nil, err
	}

	hub := websocket.NewHubService(log, m.SetLiveClients)
	uploads := storage.NewUploadStore(cfg, log)
	pipe := pipeline.New(det, media.NewDecoder(), media.NewAnnotator(), cfg, log)
	stores := service.Stores{
		Results:   sqlstore.NewResultRepository(db),
		Locations: sqlstore.NewLocationRepository(db),
		Sessions:  sqlstore.NewSessionRepository(db),
	}
	mng := service.NewManager(pipe, uploads, stores, hub, m, cfg, log)

	checks := map[string]handler.HealthCheck{"database": db.Conn().PingContext}
	if remote, ok := det.(*ai.RemoteDetector); ok {
		checks["detector"] = remote.CheckHealth
	}

	router := routes.SetupRoutes(mng, hub, m, checks, cfg, log)

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		detector:   det,
		hubService: hub,
		uploads:    uploads,
		manager:    mng,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// OpenStore opens the database selected by DB_DRIVER.
func OpenStore(cfg *config.Config) (*sqlstore.DB, error) {
	switch cfg.DBDriver {
	case "sqlite", "sqlite3":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return sqlstore.OpenSQLite(cfg.DBPath)
	case "mysql":
		return sqlstore.OpenMySQL(cfg.MySQLDSN())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func newDetector(cfg *config.Config, log *logger.Logger) (detector, error) {
	switch cfg.DetectorBackend {
	case "opencv":
		return ai.NewDNNDetector(cfg, log)
	case "remote":
		remote := ai.NewRemoteDetector(cfg.InferenceURL, cfg.ProcessingTimeout, log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := remote.CheckHealth(ctx); err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unsupported DETECTOR_BACKEND %q: %w", cfg.DetectorBackend, model.ErrModel)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	// Start background services
	go a.hubService.Run(ctx)
	go a.uploads.Run(ctx)

	a.logger.Info("People counter listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Database: %s, detector: %s", a.db.Driver(), a.config.DetectorBackend)
	a.logger.Info("Uploads: %s, results: %s", a.config.UploadDir, a.config.ResultsDir)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ProcessingTimeout+5*time.Second)
	defer cancel()
	a.logger.Info("Shutting down")
	return a.server.Shutdown(shutdownCtx)
}

// Close releases the detector and the database.
func (a *App) Close() error {
	return errors.Join(a.detector.Close(), a.db.Close())
}
