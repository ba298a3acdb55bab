package model

import "errors"

var (
	// ErrUnreadableMedia is returned when no frame can be decoded from an upload.
	ErrUnreadableMedia = errors.New("unreadable media")
	// ErrModel is returned when the detector is unavailable or fails.
	ErrModel = errors.New("detection model error")
	// ErrStorageIO is returned when an upload, frame or annotated image cannot be written.
	ErrStorageIO = errors.New("storage i/o error")
	// ErrNotFound is returned when a queried record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed requests.
	ErrValidation = errors.New("validation error")
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("upload too large")
	// ErrTimeout is returned when detection or frame extraction takes too long.
	ErrTimeout = errors.New("processing timeout")
)
