package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"peoplecounter/internal/config"
	"peoplecounter/internal/handler"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/metrics"
	"peoplecounter/internal/middleware"
	"peoplecounter/internal/service"
	ws "peoplecounter/internal/service/websocket"
)

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints,
// and wraps the mux with the CORS and request logging middleware.
func SetupRoutes(manager *service.Manager, hub *ws.HubService, m *metrics.AnalysisMetrics,
	checks map[string]handler.HealthCheck, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files; annotated results may live outside the static directory
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	mux.Handle("GET "+service.ResultsURLPrefix, http.StripPrefix(service.ResultsURLPrefix, http.FileServer(http.Dir(cfg.ResultsDir))))

	// Analysis API
	mux.HandleFunc("POST /analyze/{$}", handler.AnalyzeHandler(manager, cfg, logger))
	mux.HandleFunc("GET /results/{$}", handler.ListResultsHandler(manager, logger))
	mux.HandleFunc("GET /results/{id}", handler.GetResultHandler(manager, logger))

	// Locations and sessions
	mux.HandleFunc("POST /locations/{$}", handler.CreateLocationHandler(manager, logger))
	mux.HandleFunc("GET /locations/{$}", handler.ListLocationsHandler(manager, logger))
	mux.HandleFunc("GET /locations/{id}", handler.GetLocationHandler(manager, logger))
	mux.HandleFunc("GET /locations/{id}/results", handler.LocationResultsHandler(manager, logger))
	mux.HandleFunc("GET /locations/{id}/sessions", handler.LocationSessionsHandler(manager, logger))
	mux.HandleFunc("POST /sessions/{$}", handler.CreateSessionHandler(manager, logger))
	mux.HandleFunc("GET /sessions/{id}", handler.GetSessionHandler(manager, logger))
	mux.HandleFunc("POST /sessions/{id}/close", handler.CloseSessionHandler(manager, logger))
	mux.HandleFunc("GET /sessions/{id}/results", handler.SessionResultsHandler(manager, logger))

	// Live feed
	mux.HandleFunc("GET /api/live", handler.LiveWebsocketHandler(hub, logger))

	// Operations
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health", handler.HealthHandler(checks, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("DELETE /logs/{level}", handler.ClearLogsHandler(logger))

	// Automatic HTML handler mapping for example: /dashboard -> <static>/dashboard.html
	mux.HandleFunc("GET /", dynamicHTMLHandler(cfg.StaticDir))

	// Apply middleware
	return middleware.CORSMiddleware(middleware.LoggingMiddleware(logger)(mux))
}
