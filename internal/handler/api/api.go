// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON handlers for events, contact mail and
// signed media uploads.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/dwc-go/internal/logging"
	"github.com/olegiv/dwc-go/internal/media"
	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/service"
	"github.com/olegiv/dwc-go/internal/store"
)

// DefaultMaxUploadBytes caps a multipart create or update request.
const DefaultMaxUploadBytes = 50 << 20

// WarningsHeader lists asset cleanup failures of a successful mutation.
const WarningsHeader = "X-Asset-Cleanup-Warnings"

// Signer issues signed browser upload parameters.
type Signer interface {
	Sign(folder string, now time.Time) (*media.Signature, error)
}

// Options configures NewHandler.
type Options struct {
	Events         *service.EventService
	Contact        *service.ContactService
	Signer         Signer
	Logger         *slog.Logger
	MaxUploadBytes int64
	Now            func() time.Time
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	events         *service.EventService
	contact        *service.ContactService
	signer         Signer
	logger         *slog.Logger
	maxUploadBytes int64
	now            func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		events:         opts.Events,
		contact:        opts.Contact,
		signer:         opts.Signer,
		logger:         opts.Logger,
		maxUploadBytes: opts.MaxUploadBytes,
		now:            opts.Now,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	middleware.WriteAPIError(w, statusCode, code, message, details)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 400 response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusBadRequest, "validation_error", "Validation failed", fieldErrors)
}

// writeServiceError maps a service error to its HTTP response. Unexpected
// errors are logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *service.ValidationError
	var ue *media.UploadError

	switch {
	case errors.As(err, &ve):
		WriteValidationError(w, ve.Fields)
	case errors.Is(err, service.ErrNotFound):
		WriteNotFound(w, "Event not found")
	case errors.Is(err, store.ErrDuplicateSlug):
		WriteError(w, http.StatusConflict, "conflict", "Could not allocate a unique slug, please retry", nil)
	case errors.As(err, &ue) && ue.Kind == media.KindConfig:
		h.logger.Error("media host not configured", "op", ue.Op, "path", r.URL.Path, "category", logging.CategoryMedia)
		WriteError(w, http.StatusInternalServerError, "media_not_configured", "Media hosting is not configured", nil)
	case errors.As(err, &ue):
		h.logger.Error("media request failed",
			"op", ue.Op,
			"kind", ue.Kind.String(),
			"status", ue.Status,
			"error", err,
			"path", r.URL.Path,
			"category", logging.CategoryMedia,
		)
		WriteError(w, http.StatusBadGateway, "upload_failed", "Media upload failed", nil)
	case store.IsConnectionError(err):
		h.logger.Error("store unavailable", "error", err, "path", r.URL.Path, "category", logging.CategoryStore)
		WriteError(w, http.StatusInternalServerError, "store_unavailable", "Database is unavailable", nil)
	default:
		h.logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		WriteInternalError(w, "Internal server error")
	}
}
