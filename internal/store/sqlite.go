// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/dwc-go/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteEventStore implements EventStore on a SQLite database migrated
// with Migrate.
type SQLiteEventStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteEventStore wraps an open, migrated database.
func NewSQLiteEventStore(db *sql.DB, timeout time.Duration) *SQLiteEventStore {
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	return &SQLiteEventStore{db: db, timeout: timeout}
}

type galleryEntry struct {
	URL     string `json:"url"`
	AssetID string `json:"assetId,omitempty"`
}

const eventColumns = `id, slug, title, excerpt, content_html, cover_image, cover_image_asset_id,
	gallery, videos, tags, published_at, created_at, updated_at`

// Ping checks that the database is reachable.
func (s *SQLiteEventStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// SlugExists reports whether slug is used by a record other than excludeID.
func (s *SQLiteEventStore) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM events WHERE slug = ? AND id != ?`, slug, excludeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return n > 0, nil
}

// Insert stores a new record.
func (s *SQLiteEventStore) Insert(ctx context.Context, e *model.Event) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out := *e
	out.ID = NewID()

	args, err := rowArgs(&out)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("inserting event %q: %w", e.Slug, ErrDuplicateSlug)
		}
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return &out, nil
}

// Replace overwrites an existing record.
func (s *SQLiteEventStore) Replace(ctx context.Context, e *model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args, err := rowArgs(e)
	if err != nil {
		return err
	}
	// Move id from the first position to the WHERE clause.
	args = append(args[1:], e.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET slug = ?, title = ?, excerpt = ?, content_html = ?, cover_image = ?,
			cover_image_asset_id = ?, gallery = ?, videos = ?, tags = ?, published_at = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("updating event %q: %w", e.Slug, ErrDuplicateSlug)
		}
		return fmt.Errorf("updating event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundf("id %q", e.ID)
	}
	return nil
}

// Delete removes a record.
func (s *SQLiteEventStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundf("id %q", id)
	}
	return nil
}

// FindByID loads a record by id.
func (s *SQLiteEventStore) FindByID(ctx context.Context, id string) (*model.Event, error) {
	if !ValidID(id) {
		return nil, notFoundf("id %q", id)
	}
	return s.findOne(ctx, `id = ?`, id)
}

// FindBySlug loads a record by slug.
func (s *SQLiteEventStore) FindBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return s.findOne(ctx, `slug = ?`, slug)
}

func (s *SQLiteEventStore) findOne(ctx context.Context, where string, arg any) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE `+where, arg)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundf("%s %v", where, arg)
		}
		return nil, fmt.Errorf("finding event: %w", err)
	}
	return e, nil
}

// List returns a page of summaries and the total match count.
func (s *SQLiteEventStore) List(ctx context.Context, q model.ListQuery) ([]model.EventSummary, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q = q.Normalize()

	where := ""
	var args []any
	if q.Query != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Query)) + "%"
		where = ` WHERE LOWER(title) LIKE ? ESCAPE '\'
			OR LOWER(slug) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(events.tags) WHERE LOWER(json_each.value) LIKE ? ESCAPE '\')`
		args = []any{pattern, pattern, pattern}
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, slug, excerpt, cover_image, published_at FROM events`+where+
			` ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Skip())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]model.EventSummary, 0, q.Limit)
	for rows.Next() {
		var item model.EventSummary
		var published string
		if err := rows.Scan(&item.ID, &item.Title, &item.Slug, &item.Excerpt, &item.CoverImage, &published); err != nil {
			return nil, 0, fmt.Errorf("scanning event: %w", err)
		}
		if item.PublishedAt, err = time.Parse(timeLayout, published); err != nil {
			return nil, 0, fmt.Errorf("parsing published_at: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating events: %w", err)
	}
	return items, total, nil
}

func rowArgs(e *model.Event) ([]any, error) {
	gallery := make([]galleryEntry, len(e.Gallery))
	for i, m := range e.Gallery {
		gallery[i] = galleryEntry{URL: m.URL, AssetID: m.AssetID}
	}
	galleryJSON, err := json.Marshal(gallery)
	if err != nil {
		return nil, fmt.Errorf("encoding gallery: %w", err)
	}
	videosJSON, err := json.Marshal(orEmpty(e.Videos))
	if err != nil {
		return nil, fmt.Errorf("encoding videos: %w", err)
	}
	tagsJSON, err := json.Marshal(orEmpty(e.Tags))
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}

	return []any{
		e.ID, e.Slug, e.Title, e.Excerpt, e.ContentHTML, e.CoverImage, e.CoverImageAssetID,
		string(galleryJSON), string(videosJSON), string(tagsJSON),
		e.PublishedAt.UTC().Format(timeLayout),
		e.CreatedAt.UTC().Format(timeLayout),
		e.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var (
		e                                 model.Event
		gallery, videos, tags             string
		publishedAt, createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Excerpt, &e.ContentHTML, &e.CoverImage,
		&e.CoverImageAssetID, &gallery, &videos, &tags, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var entries []galleryEntry
	if err := json.Unmarshal([]byte(gallery), &entries); err != nil {
		return nil, fmt.Errorf("decoding gallery: %w", err)
	}
	for _, g := range entries {
		e.Gallery = append(e.Gallery, model.MediaRef{URL: g.URL, AssetID: g.AssetID})
	}
	if err := json.Unmarshal([]byte(videos), &e.Videos); err != nil {
		return nil, fmt.Errorf("decoding videos: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	for _, ts := range []struct {
		raw string
		dst *time.Time
	}{
		{publishedAt, &e.PublishedAt},
		{createdAt, &e.CreatedAt},
		{updatedAt, &e.UpdatedAt},
	} {
		t, err := time.Parse(timeLayout, ts.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts.raw, err)
		}
		*ts.dst = t
	}
	return &e, nil
}

// isUniqueViolation matches the constraint error text shared by the
// modernc and mattn drivers.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ EventStore = (*SQLiteEventStore)(nil)
