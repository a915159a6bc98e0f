// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging sets up the process logger and provides a slog handler
// that reports WARN and ERROR records to a counter.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Log categories used in the "category" attribute.
const (
	CategoryStore   = "store"
	CategoryMedia   = "media"
	CategoryMail    = "mail"
	CategoryCache   = "cache"
	CategoryHTTP    = "http"
	CategorySystem  = "system"
	CategoryCleanup = "cleanup"
)

// ParseLevel maps a config string to a slog.Level. Unknown values yield INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger in development and a JSON logger otherwise.
func New(w io.Writer, level slog.Level, isDev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isDev {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Counter receives one call per forwarded record.
type Counter interface {
	Inc(level, category string)
}

// CountingHandler is a slog.Handler that wraps another handler and also
// reports records at or above a threshold to a Counter.
type CountingHandler struct {
	inner   slog.Handler
	counter Counter
	level   slog.Level
	attrs   []slog.Attr
}

// NewCountingHandler wraps inner. Records at WARN and above are counted.
func NewCountingHandler(inner slog.Handler, counter Counter) *CountingHandler {
	return &CountingHandler{
		inner:   inner,
		counter: counter,
		level:   slog.LevelWarn,
	}
}

// Enabled implements slog.Handler.
func (h *CountingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *CountingHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level && h.counter != nil {
		h.counter.Inc(levelName(r.Level), h.category(r))
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *CountingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CountingHandler{
		inner:   h.inner.WithAttrs(attrs),
		counter: h.counter,
		level:   h.level,
		attrs:   merged,
	}
}

// WithGroup implements slog.Handler.
func (h *CountingHandler) WithGroup(name string) slog.Handler {
	return &CountingHandler{
		inner:   h.inner.WithGroup(name),
		counter: h.counter,
		level:   h.level,
		attrs:   h.attrs,
	}
}

func levelName(level slog.Level) string {
	if level >= slog.LevelError {
		return "error"
	}
	return "warn"
}

// category looks for a "category" attribute on the record or the logger,
// then falls back to keywords in the message.
func (h *CountingHandler) category(r slog.Record) string {
	var category string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "category" {
			category = a.Value.String()
			return false
		}
		return true
	})
	if category != "" {
		return category
	}
	for _, a := range h.attrs {
		if a.Key == "category" {
			return a.Value.String()
		}
	}

	msg := strings.ToLower(r.Message)
	switch {
	case strings.Contains(msg, "cloudinary") || strings.Contains(msg, "asset") || strings.Contains(msg, "upload"):
		return CategoryMedia
	case strings.Contains(msg, "mongo") || strings.Contains(msg, "database") || strings.Contains(msg, "store"):
		return CategoryStore
	case strings.Contains(msg, "email") || strings.Contains(msg, "mail"):
		return CategoryMail
	case strings.Contains(msg, "cache"):
		return CategoryCache
	default:
		return CategorySystem
	}
}
