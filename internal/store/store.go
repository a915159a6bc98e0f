// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store persists event records. MongoDB is the production backend;
// SQLite serves local development and integration tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/olegiv/dwc-go/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the id or slug.
	ErrNotFound = errors.New("event not found")

	// ErrDuplicateSlug is returned when a write violates the unique slug index.
	ErrDuplicateSlug = errors.New("duplicate slug")

	// ErrNoConnectionString is returned when the store URI is not configured.
	ErrNoConnectionString = errors.New("connection string is not configured")
)

// ConnectionError reports that the backing database could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "store connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// EventStore is the persistence contract for event records.
type EventStore interface {
	// SlugExists reports whether slug is taken by a record other than excludeID.
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	// Insert stores a new record and returns it with its generated ID.
	Insert(ctx context.Context, e *model.Event) (*model.Event, error)
	// Replace overwrites the record with e.ID.
	Replace(ctx context.Context, e *model.Event) error
	// Delete removes the record with id.
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Event, error)
	FindBySlug(ctx context.Context, slug string) (*model.Event, error)
	// List returns one page of summaries sorted by publishedAt descending and
	// the total number of matching records.
	List(ctx context.Context, q model.ListQuery) ([]model.EventSummary, int64, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// NewID returns a new record id. Both backends use ObjectID hex strings.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id has the ObjectID hex form.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}
