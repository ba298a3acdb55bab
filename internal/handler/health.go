package handler

import (
	"context"
	"net/http"
	"time"

	"peoplecounter/internal/logger"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthHandler runs every check and answers 200 when all pass, 503 otherwise.
func HealthHandler(checks map[string]HealthCheck, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warning("Health check %s failed: %v", name, err)
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}

		respondJSON(w, status, report, logger)
	}
}
