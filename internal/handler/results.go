package handler

import (
	"net/http"

	"peoplecounter/internal/logger"
	"peoplecounter/internal/service"
)

// ListResultsHandler returns stored results newest first, paginated by skip and limit.
func ListResultsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, limit, err := pageParams(r, service.DefaultListLimit)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		results, err := manager.ListResults(r.Context(), skip, limit)
		if err != nil {
			logger.Error("Error listing results: %v", err)
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, results, logger)
	}
}

// GetResultHandler returns one result by id.
func GetResultHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		result, err := manager.GetResult(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, result, logger)
	}
}
