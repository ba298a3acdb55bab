// Package storage manages the transient files written while a request is analyzed.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"peoplecounter/internal/config"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

const (
	// SweepInterval defines how often the upload directory is scanned for leftovers.
	SweepInterval = 10 * time.Minute
	// StaleAfter is the age after which a transient file is considered orphaned.
	StaleAfter = time.Hour
)

// UploadStore writes uploads under unique names and removes files orphaned by a crash.
type UploadStore struct {
	uploadDir string
	maxBytes  int64
	logger    *logger.Logger
}

// NewUploadStore creates a new UploadStore rooted at cfg.UploadDir.
func NewUploadStore(cfg *config.Config, logger *logger.Logger) *UploadStore {
	return &UploadStore{
		uploadDir: cfg.UploadDir,
		maxBytes:  cfg.MaxUploadMB << 20,
		logger:    logger,
	}
}

// Save streams body to upload_<token><ext>. The returned cleanup func removes the file
// and must be called on every path once the file is no longer needed.
func (s *UploadStore) Save(body io.Reader, token, ext string) (string, func(), error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", nil, fmt.Errorf("create %s: %v: %w", s.uploadDir, err, model.ErrStorageIO)
	}

	path := filepath.Join(s.uploadDir, "upload_"+token+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", nil, fmt.Errorf("create upload: %v: %w", err, model.ErrStorageIO)
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to remove upload %s: %v", path, err)
		}
	}

	src := body
	if s.maxBytes > 0 {
		src = io.LimitReader(body, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		cleanup()
		return "", nil, fmt.Errorf("write upload: %v: %w", err, model.ErrStorageIO)
	case n == 0:
		cleanup()
		return "", nil, fmt.Errorf("uploaded file is empty: %w", model.ErrValidation)
	case s.maxBytes > 0 && n > s.maxBytes:
		cleanup()
		return "", nil, fmt.Errorf("uploaded file exceeds %d MB: %w", s.maxBytes>>20, model.ErrTooLarge)
	}
	return path, cleanup, nil
}

// Run starts a ticker loop that periodically removes stale transient files.
func (s *UploadStore) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now().Add(-StaleAfter))
		}
	}
}

// Sweep removes upload and frame files last modified before cutoff and returns how many
// were removed. Files of in-flight requests are younger than any sensible cutoff.
func (s *UploadStore) Sweep(cutoff time.Time) int {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Error reading upload directory: %v", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasPrefix(name, "upload_") || strings.HasPrefix(name, "frame_")) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.uploadDir, name)); err != nil {
			s.logger.Error("Error removing stale file %s: %v", name, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Removed %d stale upload(s)", removed)
	}
	return removed
}
