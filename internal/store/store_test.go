// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/olegiv/dwc-go/internal/model"
)

// testDB opens an in-memory SQLite database with migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A single connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Migrate: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testStore(t *testing.T) *SQLiteEventStore {
	t.Helper()
	return NewSQLiteEventStore(testDB(t), 5*time.Second)
}

func newEvent(slug string, published time.Time) *model.Event {
	return &model.Event{
		Slug:        slug,
		Title:       "Title " + slug,
		Excerpt:     "Excerpt " + slug,
		ContentHTML: "<p>body of " + slug + "</p>",
		CoverImage:  "https://cdn.example/" + slug + ".jpg",
		Gallery: []model.MediaRef{
			{URL: "https://cdn.example/g1.jpg", AssetID: "events/g1"},
			{URL: "https://pasted.example/g2.jpg"},
		},
		Videos:      []string{"https://youtube.example/v"},
		Tags:        []string{"Lagos", "Qualifier"},
		PublishedAt: published,
		CreatedAt:   published,
		UpdatedAt:   published,
	}
}

func TestOpenSQLite(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "dwc.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("Migrate run %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"events", "sessions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSQLiteEventStore_InsertAndFind(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	published := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	created, err := s.Insert(ctx, newEvent("gala-night", published))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !ValidID(created.ID) {
		t.Fatalf("Insert returned invalid id %q", created.ID)
	}

	byID, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Slug != "gala-night" {
		t.Errorf("Slug = %q, want %q", byID.Slug, "gala-night")
	}
	if !byID.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", byID.PublishedAt, published)
	}
	if len(byID.Gallery) != 2 || byID.Gallery[0].AssetID != "events/g1" || byID.Gallery[1].AssetID != "" {
		t.Errorf("Gallery = %+v", byID.Gallery)
	}
	if len(byID.Tags) != 2 || byID.Tags[0] != "Lagos" {
		t.Errorf("Tags = %v", byID.Tags)
	}

	bySlug, err := s.FindBySlug(ctx, "gala-night")
	if err != nil {
		t.Fatalf("FindBySlug: %v", err)
	}
	if bySlug.ID != created.ID {
		t.Errorf("FindBySlug ID = %q, want %q", bySlug.ID, created.ID)
	}
}

func TestSQLiteEventStore_NotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"find unknown id", func() error { _, err := s.FindByID(ctx, NewID()); return err }},
		{"find malformed id", func() error { _, err := s.FindByID(ctx, "not-an-id"); return err }},
		{"find unknown slug", func() error { _, err := s.FindBySlug(ctx, "missing"); return err }},
		{"delete unknown", func() error { return s.Delete(ctx, NewID()) }},
		{"replace unknown", func() error {
			e := newEvent("x", time.Now())
			e.ID = NewID()
			return s.Replace(ctx, e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSQLiteEventStore_DuplicateSlug(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, newEvent("same", time.Now())); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	_, err := s.Insert(ctx, newEvent("same", time.Now()))
	if !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("second Insert error = %v, want ErrDuplicateSlug", err)
	}

	other, err := s.Insert(ctx, newEvent("other", time.Now()))
	if err != nil {
		t.Fatalf("Insert other: %v", err)
	}
	other.Slug = "same"
	if err := s.Replace(ctx, other); !errors.Is(err, ErrDuplicateSlug) {
		t.Errorf("Replace error = %v, want ErrDuplicateSlug", err)
	}
}

func TestSQLiteEventStore_SlugExists(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, newEvent("taken", time.Now()))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	exists, err := s.SlugExists(ctx, "taken", "")
	if err != nil || !exists {
		t.Errorf("SlugExists(taken) = %v, %v; want true", exists, err)
	}
	exists, err = s.SlugExists(ctx, "taken", created.ID)
	if err != nil || exists {
		t.Errorf("SlugExists(taken, self) = %v, %v; want false", exists, err)
	}
	exists, err = s.SlugExists(ctx, "free", "")
	if err != nil || exists {
		t.Errorf("SlugExists(free) = %v, %v; want false", exists, err)
	}
}

func TestSQLiteEventStore_ReplaceAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, newEvent("before", time.Now()))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	created.Slug = "after"
	created.Gallery = nil
	if err := s.Replace(ctx, created); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Slug != "after" || len(got.Gallery) != 0 {
		t.Errorf("after Replace: slug %q gallery %+v", got.Slug, got.Gallery)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after Delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteEventStore_List(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		e := newEvent(fmt.Sprintf("event-%02d", i), base.Add(time.Duration(i)*time.Hour))
		if i == 3 {
			e.Tags = []string{"Abuja Finals"}
		}
		if _, err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	t.Run("default page sorted newest first", func(t *testing.T) {
		items, total, err := s.List(ctx, model.ListQuery{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 12 {
			t.Errorf("total = %d, want 12", total)
		}
		if len(items) != model.DefaultListLimit {
			t.Fatalf("len(items) = %d, want %d", len(items), model.DefaultListLimit)
		}
		if items[0].Slug != "event-11" || items[8].Slug != "event-03" {
			t.Errorf("order = %s .. %s", items[0].Slug, items[8].Slug)
		}
	})

	t.Run("second page", func(t *testing.T) {
		items, _, err := s.List(ctx, model.ListQuery{Page: 2, Limit: 5})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(items) != 5 || items[0].Slug != "event-06" {
			t.Errorf("page 2 = %d items starting %q", len(items), items[0].Slug)
		}
	})

	t.Run("page far past the end", func(t *testing.T) {
		items, total, err := s.List(ctx, model.ListQuery{Page: 1024819115206086202, Limit: 9})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 12 || len(items) != 0 {
			t.Errorf("huge page = %d items, total %d; want 0 items of 12", len(items), total)
		}
	})

	t.Run("search by tag case insensitive", func(t *testing.T) {
		items, total, err := s.List(ctx, model.ListQuery{Query: "abuja"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 1 || len(items) != 1 || items[0].Slug != "event-03" {
			t.Errorf("tag search = %d %+v", total, items)
		}
	})

	t.Run("search by title", func(t *testing.T) {
		_, total, err := s.List(ctx, model.ListQuery{Query: "TITLE EVENT-1"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		// event-10 and event-11
		if total != 2 {
			t.Errorf("title search total = %d, want 2", total)
		}
	})

	t.Run("wildcards are literal", func(t *testing.T) {
		_, total, err := s.List(ctx, model.ListQuery{Query: "%"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 0 {
			t.Errorf("%% search total = %d, want 0", total)
		}
	})
}

func TestProvider_ConnectWithoutURI(t *testing.T) {
	p := NewProvider(MongoConfig{Database: "dwc"})

	_, err := p.Connect(context.Background())
	if !IsConnectionError(err) {
		t.Fatalf("Connect error = %v, want ConnectionError", err)
	}
	if !errors.Is(err, ErrNoConnectionString) {
		t.Errorf("Connect error = %v, want ErrNoConnectionString", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("Close on unconnected provider: %v", err)
	}
}

func TestMongoEventStore_MalformedIDs(t *testing.T) {
	s := NewMongoEventStore(NewProvider(MongoConfig{}), time.Second)
	ctx := context.Background()

	if _, err := s.FindByID(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindBySlug(ctx, "x"); !IsConnectionError(err) {
		t.Errorf("FindBySlug without URI error = %v, want ConnectionError", err)
	}
}

func TestSearchFilter(t *testing.T) {
	if f := searchFilter(""); len(f) != 0 {
		t.Errorf("empty query filter = %v, want empty", f)
	}
	f := searchFilter("a.b")
	or, ok := f["$or"]
	if !ok {
		t.Fatalf("filter = %v, want $or", f)
	}
	if fmt.Sprint(or) == "" {
		t.Error("empty $or clause")
	}
}
