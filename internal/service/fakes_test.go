// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/dwc-go/internal/media"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/store"
)

// memStore is an in-memory EventStore.
type memStore struct {
	mu     sync.Mutex
	events map[string]*model.Event

	// dupOnInsert makes the next n inserts fail with ErrDuplicateSlug.
	dupOnInsert int
	probes      int

	// writeErr fails the next Insert or Replace. With committed set the
	// write is applied before the error is returned.
	writeErr  error
	committed bool

	// onWrite runs at the start of Insert and Replace.
	onWrite func(ctx context.Context)
}

// failWrite consumes writeErr. It reports whether the write should be
// applied and the error to return.
func (m *memStore) failWrite() (bool, error) {
	err := m.writeErr
	m.writeErr = nil
	return err == nil || m.committed, err
}

func newMemStore() *memStore {
	return &memStore{events: make(map[string]*model.Event)}
}

func (m *memStore) SlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	for id, e := range m.events {
		if e.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Insert(ctx context.Context, e *model.Event) (*model.Event, error) {
	if m.onWrite != nil {
		m.onWrite(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dupOnInsert > 0 {
		m.dupOnInsert--
		return nil, store.ErrDuplicateSlug
	}
	for _, other := range m.events {
		if other.Slug == e.Slug {
			return nil, store.ErrDuplicateSlug
		}
	}
	apply, writeErr := m.failWrite()
	if !apply {
		return nil, writeErr
	}
	out := *e
	out.ID = store.NewID()
	cp := out
	m.events[out.ID] = &cp
	if writeErr != nil {
		return nil, writeErr
	}
	return &out, nil
}

func (m *memStore) Replace(ctx context.Context, e *model.Event) error {
	if m.onWrite != nil {
		m.onWrite(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return store.ErrNotFound
	}
	for id, other := range m.events {
		if other.Slug == e.Slug && id != e.ID {
			return store.ErrDuplicateSlug
		}
	}
	apply, writeErr := m.failWrite()
	if !apply {
		return writeErr
	}
	cp := *e
	m.events[e.ID] = &cp
	return writeErr
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", store.ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) FindBySlug(_ context.Context, slug string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Slug == slug {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: slug %q", store.ErrNotFound, slug)
}

func (m *memStore) List(_ context.Context, q model.ListQuery) ([]model.EventSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q = q.Normalize()

	var all []*model.Event
	for _, e := range m.events {
		if q.Query == "" || strings.Contains(strings.ToLower(e.Title), strings.ToLower(q.Query)) {
			all = append(all, e)
		}
	}
	slices.SortFunc(all, func(a, b *model.Event) int { return b.PublishedAt.Compare(a.PublishedAt) })

	start := min(int(q.Skip()), len(all))
	end := min(start+q.Limit, len(all))
	items := make([]model.EventSummary, 0, end-start)
	for _, e := range all[start:end] {
		items = append(items, model.EventSummary{ID: e.ID, Title: e.Title, Slug: e.Slug, PublishedAt: e.PublishedAt})
	}
	return items, int64(len(all)), nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// fakeMedia records uploads and deletions.
type fakeMedia struct {
	mu       sync.Mutex
	next     int
	uploads  []string
	deleted  []string
	live     map[string]bool
	failOn   int // 1-based upload number that fails, 0 = never
	failDel  map[string]bool
	uploadFn func(ctx context.Context) error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{live: make(map[string]bool), failDel: make(map[string]bool)}
}

func (f *fakeMedia) Upload(ctx context.Context, _ []byte, opts media.UploadOptions) (*media.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadFn != nil {
		if err := f.uploadFn(ctx); err != nil {
			return nil, err
		}
	}
	f.next++
	if f.failOn == f.next {
		return nil, &media.UploadError{Op: "upload", Kind: media.KindRemote, Status: 500, Message: "boom"}
	}
	id := fmt.Sprintf("%s/asset-%d", opts.Folder, f.next)
	f.uploads = append(f.uploads, id)
	f.live[id] = true
	return &media.Asset{URL: "https://res.example/" + id + ".jpg", AssetID: id}, nil
}

func (f *fakeMedia) Delete(_ context.Context, assetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDel[assetID] {
		return errors.New("delete refused")
	}
	f.deleted = append(f.deleted, assetID)
	delete(f.live, assetID)
	return nil
}

func (f *fakeMedia) deletedSorted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.deleted)
	slices.Sort(out)
	return out
}

func (f *fakeMedia) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(st *memStore, fm *fakeMedia) *EventService {
	return NewEventService(EventServiceOptions{
		Store:  st,
		Media:  fm,
		Logger: discardLogger(),
		Folder: "events",
		Now:    func() time.Time { return testNow },
	})
}

func strPtr(s string) *string { return &s }

func fileUpload(name string) FileUpload {
	return FileUpload{Filename: name, ContentType: "image/jpeg", Data: []byte("jpegdata")}
}
