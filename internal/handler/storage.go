package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/fampulse/internal/storage"
)

// Uploader stores a blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, path string, body io.Reader, contentType string) (string, error)
}

type StorageHandler struct {
	uploader Uploader
	logger   *slog.Logger
}

// NewStorageHandler returns a handler that answers 503 when uploader is nil.
func NewStorageHandler(uploader Uploader, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{uploader: uploader, logger: logger}
}

// Upload handles PUT /storage/v1/object/{path...}.
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	path := r.PathValue("path")
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Content-Type is required")
		return
	}

	url, err := h.uploader.Upload(r.Context(), path, r.Body, contentType)
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid object path")
		return
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "object too large")
		return
	case err != nil:
		h.logger.Error("upload failed", "path", path, "error", err)
		writeError(w, http.StatusBadGateway, "failed to store object")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
