// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/dwc-go/internal/model"
)

// EventsPrefix namespaces every event read-cache key.
const EventsPrefix = "events:"

// EventCache stores public event reads as JSON. A nil *EventCache is a
// valid no-op cache.
type EventCache struct {
	c        Cacher
	ttl      time.Duration
	observer func(kind string, hit bool)
}

// NewEventCache wraps c. ttl <= 0 uses the backend default.
func NewEventCache(c Cacher, ttl time.Duration) *EventCache {
	return &EventCache{c: c, ttl: ttl}
}

// SetObserver registers fn to be called on every lookup with the key kind
// ("list", "slug" or "id") and whether it was a hit.
func (e *EventCache) SetObserver(fn func(kind string, hit bool)) {
	if e != nil {
		e.observer = fn
	}
}

// ListKey identifies a normalized list query. Search is case-insensitive so
// the query text is folded.
func ListKey(q model.ListQuery) string {
	q = q.Normalize()
	return fmt.Sprintf("%slist:%d:%d:%s", EventsPrefix, q.Page, q.Limit, strings.ToLower(strings.TrimSpace(q.Query)))
}

// SlugKey identifies a by-slug read.
func SlugKey(slug string) string {
	return EventsPrefix + "slug:" + slug
}

// IDKey identifies a by-id read.
func IDKey(id string) string {
	return EventsPrefix + "id:" + id
}

// GetPage returns a cached list page.
func (e *EventCache) GetPage(ctx context.Context, q model.ListQuery) (*model.EventPage, bool) {
	var page model.EventPage
	if !e.get(ctx, "list", ListKey(q), &page) {
		return nil, false
	}
	return &page, true
}

// SetPage caches a list page.
func (e *EventCache) SetPage(ctx context.Context, q model.ListQuery, page *model.EventPage) error {
	return e.set(ctx, ListKey(q), page)
}

// GetBySlug returns a cached record.
func (e *EventCache) GetBySlug(ctx context.Context, slug string) (*model.Event, bool) {
	var ev model.Event
	if !e.get(ctx, "slug", SlugKey(slug), &ev) {
		return nil, false
	}
	return &ev, true
}

// GetByID returns a cached record.
func (e *EventCache) GetByID(ctx context.Context, id string) (*model.Event, bool) {
	var ev model.Event
	if !e.get(ctx, "id", IDKey(id), &ev) {
		return nil, false
	}
	return &ev, true
}

// SetEvent caches ev under both its slug and id.
func (e *EventCache) SetEvent(ctx context.Context, ev *model.Event) error {
	return errors.Join(
		e.set(ctx, SlugKey(ev.Slug), ev),
		e.set(ctx, IDKey(ev.ID), ev),
	)
}

// Invalidate drops every cached event read.
func (e *EventCache) Invalidate(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.c.DeleteByPrefix(ctx, EventsPrefix)
}

func (e *EventCache) get(ctx context.Context, kind, key string, dst any) bool {
	if e == nil {
		return false
	}
	data, err := e.c.Get(ctx, key)
	hit := err == nil && json.Unmarshal(data, dst) == nil
	if e.observer != nil {
		e.observer(kind, hit)
	}
	return hit
}

func (e *EventCache) set(ctx context.Context, key string, v any) error {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return e.c.Set(ctx, key, data, e.ttl)
}
