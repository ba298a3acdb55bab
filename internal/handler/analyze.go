package handler

import (
	"errors"
	"fmt"
	"net/http"

	"peoplecounter/internal/config"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
	"peoplecounter/internal/service"
)

// maxMemory is the part of a multipart form kept in memory; the rest spills to disk.
const maxMemory = 32 << 20

// AnalyzeHandler accepts a multipart upload in the "file" field, with optional
// location_id and session_id fields, and returns the analysis outcome.
func AnalyzeHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadMB > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, (cfg.MaxUploadMB+1)<<20)
		}

		if err := r.ParseMultipartForm(maxMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", cfg.MaxUploadMB), logger)
				return
			}
			respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), logger)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "file is required", logger)
			return
		}
		defer file.Close()

		locationID, err := optionalID(r.FormValue("location_id"), "location_id")
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}
		sessionID, err := optionalID(r.FormValue("session_id"), "session_id")
		if err != nil {
			respondServiceError(w, err, logger)
			return
		}

		resp, err := manager.Analyze(r.Context(), service.AnalyzeRequest{
			Filename:   header.Filename,
			Body:       file,
			LocationID: locationID,
			SessionID:  sessionID,
		})
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				err = fmt.Errorf("%v: %w", err, model.ErrValidation)
			}
			respondServiceError(w, err, logger)
			return
		}

		respondJSON(w, http.StatusOK, resp, logger)
	}
}
