package handler

import (
	"net/http"
	"os"
	"slices"

	"peoplecounter/internal/logger"
)

// ShowLogsHandler serves the log file of the {level} path segment as text/plain.
func ShowLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.PathValue("level")
		if !slices.Contains(logger.Levels, level) {
			respondError(w, http.StatusNotFound, "not found", log)
			return
		}
		serveLogFile(w, r, log.FilePath(level), log)
	}
}

// serveLogFile sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, filePath string, log *logger.Logger) {
	if filePath == "" {
		respondError(w, http.StatusNotFound, "log file not found", log)
		return
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		respondError(w, http.StatusNotFound, "log file not found", log)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates the log file of the {level} path segment.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.PathValue("level")
		if !slices.Contains(logger.Levels, level) {
			respondError(w, http.StatusNotFound, "not found", log)
			return
		}

		if err := log.CleanLogs(level); err != nil {
			log.Error("Error clearing %s log: %v", level, err)
			respondError(w, http.StatusInternalServerError, err.Error(), log)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
