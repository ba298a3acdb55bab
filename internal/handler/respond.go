package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"peoplecounter/internal/dto"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

// respondJSON writes data as a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, data any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

// respondError writes a {detail} body.
func respondError(w http.ResponseWriter, status int, detail string, logger *logger.Logger) {
	respondJSON(w, status, dto.ErrorResponse{Detail: detail}, logger)
}

// respondServiceError maps a service error to its HTTP status. Processing failures of any
// kind share one 500 response.
func respondServiceError(w http.ResponseWriter, err error, logger *logger.Logger) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", logger)
	case errors.Is(err, model.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error(), logger)
	case errors.Is(err, model.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error(), logger)
	default:
		respondError(w, http.StatusInternalServerError, "processing failed: "+err.Error(), logger)
	}
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", r.PathValue("id"), model.ErrValidation)
	}
	return id, nil
}

// pageParams reads skip and limit from the query string. Missing values default to
// 0 and 100; anything that is not a non-negative integer is rejected.
func pageParams(r *http.Request, defaultLimit uint) (uint, uint, error) {
	q := r.URL.Query()

	skip, err := uintDefault(q.Get("skip"), 0)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid skip: %w", model.ErrValidation)
	}
	limit, err := uintDefault(q.Get("limit"), defaultLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid limit: %w", model.ErrValidation)
	}
	return skip, limit, nil
}

func uintDefault(s string, def uint) (uint, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// optionalID parses an optional positive integer form value.
func optionalID(value, name string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s %q: %w", name, value, model.ErrValidation)
	}
	return &id, nil
}
