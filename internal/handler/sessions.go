package handler

import (
	"encoding/json"
	"net/http"

	"peoplecounter/internal/dto"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/service"
)

// CreateSessionHandler opens an analysis session at a location.
func CreateSessionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body", logger)
			return
		}

		session, err := manager.StartSession(r.Context(), req)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusCreated, session, logger)
	}
}

// GetSessionHandler returns one session with its aggregates.
func GetSessionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		session, err := manager.GetSession(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, session, logger)
	}
}

// CloseSessionHandler ends a session.
func CloseSessionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		session, err := manager.CloseSession(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, session, logger)
	}
}

// SessionResultsHandler returns the results of a session.
func SessionResultsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
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

		results, err := manager.SessionResults(r.Context(), id, skip, limit)
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		respondJSON(w, http.StatusOK, results, logger)
	}
}
