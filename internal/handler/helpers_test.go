// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/olegiv/dwc-go/internal/mail"
	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/render"
	"github.com/olegiv/dwc-go/internal/seo"
	"github.com/olegiv/dwc-go/internal/service"
	"github.com/olegiv/dwc-go/internal/session"
	"github.com/olegiv/dwc-go/internal/store"
	"github.com/olegiv/dwc-go/web"
)

const testKey = "console-key"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubMailer struct {
	err  error
	sent []mail.Message
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

// testSite wires the HTML handlers onto a router the way main does.
type testSite struct {
	router *chi.Mux
	store  *store.SQLiteEventStore
	mailer *stubMailer
	sm     *scs.SessionManager
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	templates, err := web.TemplatesFS()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	sm := session.New(nil, true)
	renderer, err := render.New(render.Config{TemplatesFS: templates, SessionManager: sm, IsDev: true, Version: "test"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	logger := discardLogger()
	site := &testSite{
		store:  store.NewSQLiteEventStore(db, 5*time.Second),
		mailer: &stubMailer{},
		sm:     sm,
	}
	events := service.NewEventService(service.EventServiceOptions{
		Store:  site.store,
		Logger: logger,
		Now:    func() time.Time { return testNow },
	})
	contact := service.NewContactService(service.ContactServiceOptions{
		Mailer: site.mailer,
		From:   "site@dwc.example",
		To:     "info@dwc.example",
		Logger: logger,
	})

	eh := NewEventsHandler(events, renderer, logger, seo.Site{Name: "International Dance Nigeria"}, 1<<20)
	ch := NewContactHandler(contact, renderer, logger)
	sh := NewSEOHandler(events, seo.Site{URL: "https://dwc.example"}, false, logger)
	auth := middleware.NewManageAuth(middleware.NewKeyVerifier(testKey, ""), nil)

	r := chi.NewRouter()
	r.Use(sm.LoadAndSave)
	r.Get(RouteEventList, eh.List)
	r.With(auth.Console, middleware.NoStore).Get(RouteEventManage, eh.Manage)
	r.Get(RouteEventDetail, eh.Detail)
	r.Get(RouteContact, ch.Form)
	r.Post(RouteContact, ch.Submit)
	r.Get(RouteRobots, sh.Robots)
	r.Get(RouteSitemap, sh.Sitemap)
	r.NotFound(eh.NotFound)
	site.router = r
	return site
}

func (s *testSite) get(t *testing.T, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testSite) seed(t *testing.T, title, slug string, published time.Time) *model.Event {
	t.Helper()
	ev, err := s.store.Insert(context.Background(), &model.Event{
		Slug:        slug,
		Title:       title,
		Excerpt:     "About " + title,
		ContentHTML: "<p>Body of " + title + "</p>",
		CoverImage:  "https://res.cloudinary.com/demo/" + slug + ".jpg",
		Gallery: []model.MediaRef{
			{URL: "https://res.cloudinary.com/demo/g1.jpg", AssetID: "events/g1"},
		},
		Videos:      []string{"https://youtu.be/abc123", "https://example.com/clip.mp4"},
		Tags:        []string{"Lagos"},
		PublishedAt: published,
		CreatedAt:   published,
		UpdatedAt:   published,
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", slug, err)
	}
	return ev
}
