package handler

import (
	"encoding/json"
	"net/http"

	"peoplecounter/internal/dto"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/service"
)

// CreateLocationHandler registers a location from a JSON body.
func CreateLocationHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateLocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body", logger)
			return
		}

		loc, err := manager.CreateLocation(r.Context(), req)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusCreated, loc, logger)
	}
}

// ListLocationsHandler returns every location.
func ListLocationsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locations, err := manager.ListLocations(r.Context())
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, locations, logger)
	}
}

// GetLocationHandler returns one location.
func GetLocationHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		loc, err := manager.GetLocation(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, loc, logger)
	}
}

// LocationResultsHandler returns the results recorded at a location.
func LocationResultsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		skip, limit, err := pageParams(r, service.DefaultListLimit)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		results, err := manager.LocationResults(r.Context(), id, skip, limit)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, results, logger)
	}
}

// LocationSessionsHandler returns the sessions of a location.
func LocationSessionsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		sessions, err := manager.LocationSessions(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, sessions, logger)
	}
}
