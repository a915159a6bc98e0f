// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/dwc-go/internal/mail"
	"github.com/olegiv/dwc-go/internal/media"
	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/service"
	"github.com/olegiv/dwc-go/internal/store"
)

const testKey = "valid-key"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeUploader struct {
	mu      sync.Mutex
	next    int
	fail    bool
	failDel map[string]bool
	uploads []string
	deleted []string
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, opts media.UploadOptions) (*media.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, &media.UploadError{Op: "upload", Kind: media.KindRemote, Status: 500, Message: "provider down"}
	}
	f.next++
	id := fmt.Sprintf("%s/up-%d", opts.Folder, f.next)
	f.uploads = append(f.uploads, id)
	return &media.Asset{URL: "https://res.example/" + id + ".jpg", AssetID: id}, nil
}

func (f *fakeUploader) Delete(_ context.Context, assetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDel[assetID] {
		return errors.New("destroy refused")
	}
	f.deleted = append(f.deleted, assetID)
	return nil
}

type fakeMailer struct {
	err  error
	sent []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-123", nil
}

type testEnv struct {
	router *chi.Mux
	events *service.EventService
	store  *store.SQLiteEventStore
	media  *fakeUploader
	mailer *fakeMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, store.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:  store.NewSQLiteEventStore(db, 5*time.Second),
		media:  &fakeUploader{failDel: map[string]bool{}},
		mailer: &fakeMailer{},
	}
	env.events = service.NewEventService(service.EventServiceOptions{
		Store:  env.store,
		Media:  env.media,
		Logger: logger,
		Folder: "events",
		Now:    func() time.Time { return testNow },
	})
	contact := service.NewContactService(service.ContactServiceOptions{
		Mailer: env.mailer,
		From:   "site@dwc.example",
		To:     "info@dwc.example",
		Logger: logger,
	})
	signer := media.NewClient(media.Config{CloudName: "demo", APIKey: "123", APISecret: "shh"})

	h := NewHandler(Options{
		Events:         env.events,
		Contact:        contact,
		Signer:         signer,
		Logger:         logger,
		MaxUploadBytes: 1 << 20,
		Now:            func() time.Time { return testNow },
	})

	env.router = chi.NewRouter()
	Register(env.router, h, RouteOptions{
		Auth: middleware.NewManageAuth(middleware.NewKeyVerifier(testKey, ""), nil),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return e.do(t, method, target, "application/json", bytes.NewReader(data))
}

func (e *testEnv) count(t *testing.T) int64 {
	t.Helper()
	_, total, err := e.store.List(context.Background(), model.ListQuery{})
	require.NoError(t, err)
	return total
}

func (e *testEnv) seed(t *testing.T, title string, gallery ...model.MediaRef) *model.Event {
	t.Helper()
	res, err := e.events.Create(context.Background(), service.CreateEventCommand{
		Title:             title,
		ContentHTML:       "<p>Body</p>",
		CoverImage:        "https://res.example/events/cover.jpg",
		CoverImageAssetID: "events/cover",
		Gallery:           gallery,
	})
	require.NoError(t, err)
	return res.Event
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.APIError {
	t.Helper()
	var body middleware.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

type multipartBody struct {
	buf *bytes.Buffer
	w   *multipart.Writer
}

func newMultipart() *multipartBody {
	buf := &bytes.Buffer{}
	return &multipartBody{buf: buf, w: multipart.NewWriter(buf)}
}

func (m *multipartBody) field(name, value string) *multipartBody {
	_ = m.w.WriteField(name, value)
	return m
}

func (m *multipartBody) file(field, name string) *multipartBody {
	fw, _ := m.w.CreateFormFile(field, name)
	_, _ = fw.Write([]byte("fake image bytes for " + name))
	return m
}

func (m *multipartBody) finish() (string, io.Reader) {
	_ = m.w.Close()
	return m.w.FormDataContentType(), m.buf
}

func TestCreateEvent_JSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/events?key="+testKey, map[string]any{
		"title":       "Gala Night",
		"contentHtml": "<p>Hi</p>",
		"coverImage":  "https://x/y.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gala-night", body["slug"])
	assert.Equal(t, []any{}, body["images"])
	assert.Equal(t, []any{}, body["imagesAssetIds"])
	assert.Equal(t, []any{}, body["videos"])
	assert.Equal(t, "<p>Hi</p>", body["contentHtml"])
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, int64(1), env.count(t))
}

func TestCreateEvent_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/events?key=WRONG", "/events"} {
		rec := env.doJSON(t, http.MethodPost, target, map[string]any{
			"title":       "Gala Night",
			"contentHtml": "<p>Hi</p>",
			"coverImage":  "https://x/y.jpg",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Error.Code)
	}
	assert.Zero(t, env.count(t))
	assert.Empty(t, env.media.uploads)
}

func TestCreateEvent_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/events?key="+testKey, map[string]any{
		"excerpt":     strings.Repeat("x", 301),
		"publishedAt": "next tuesday",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.Contains(t, body.Error.Details, "publishedAt")
	assert.Zero(t, env.count(t))
}

func TestCreateEvent_ServiceValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/events?key="+testKey, map[string]any{
		"excerpt": strings.Repeat("x", 301),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	details := decodeError(t, rec).Error.Details
	for _, field := range []string{"title", "contentHtml", "coverImage", "excerpt"} {
		assert.Contains(t, details, field)
	}
}

func TestCreateEvent_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/events?key="+testKey, "application/json", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Error.Code)
}

func TestCreateEvent_Multipart(t *testing.T) {
	env := newTestEnv(t)

	ct, body := newMultipart().
		field("title", "Lagos Qualifier").
		field("contentHtml", "<p>Results</p>").
		field("images", "https://pasted.example/a.jpg").
		field("videos", `["https://www.youtube.com/watch?v=abc"]`).
		field("tags", "lagos").
		field("tags", "qualifier").
		field("publishedAt", "2026-02-01").
		file("coverFile", "cover.jpg").
		file("imageFiles", "one.jpg").
		file("imageFiles", "two.jpg").
		finish()

	rec := env.do(t, http.MethodPost, "/events?key="+testKey, ct, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ev model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "lagos-qualifier", ev.Slug)
	assert.Equal(t, "https://res.example/events/up-1.jpg", ev.CoverImage)
	assert.Equal(t, "events/up-1", ev.CoverImageAssetID)
	assert.Equal(t, []model.MediaRef{
		{URL: "https://pasted.example/a.jpg"},
		{URL: "https://res.example/events/up-2.jpg", AssetID: "events/up-2"},
		{URL: "https://res.example/events/up-3.jpg", AssetID: "events/up-3"},
	}, ev.Gallery)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, ev.Videos)
	assert.Equal(t, []string{"lagos", "qualifier"}, ev.Tags)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), ev.PublishedAt.UTC())
}

func TestCreateEvent_UploadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.media.fail = true

	ct, body := newMultipart().
		field("title", "Broken").
		field("contentHtml", "<p>x</p>").
		file("coverFile", "cover.jpg").
		finish()

	rec := env.do(t, http.MethodPost, "/events?key="+testKey, ct, body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upload_failed", decodeError(t, rec).Error.Code)
	assert.Zero(t, env.count(t))
}

func TestCreateEvent_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	mp := newMultipart().field("title", "Huge").field("contentHtml", "<p>x</p>")
	fw, _ := mp.w.CreateFormFile("coverFile", "huge.jpg")
	_, _ = fw.Write(bytes.Repeat([]byte{0xff}, 2<<20))
	ct, body := mp.finish()

	rec := env.do(t, http.MethodPost, "/events?key="+testKey, ct, body)
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	assert.Zero(t, env.count(t))
}

func TestUpdateEvent_KeepList(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night",
		model.MediaRef{URL: "https://res.example/events/g1.jpg", AssetID: "events/g1"},
		model.MediaRef{URL: "https://res.example/events/g2.jpg", AssetID: "events/g2"},
		model.MediaRef{URL: "https://pasted.example/p.jpg"},
	)

	ct, body := newMultipart().
		field("keepAssetIds", "events/g2").
		field("keepAssetIds", "https://pasted.example/p.jpg").
		file("imageFiles", "new.jpg").
		finish()

	rec := env.do(t, http.MethodPut, "/events/id/"+ev.ID+"?key="+testKey, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get(WarningsHeader))

	var got model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []model.MediaRef{
		{URL: "https://res.example/events/g2.jpg", AssetID: "events/g2"},
		{URL: "https://pasted.example/p.jpg"},
		{URL: "https://res.example/events/up-1.jpg", AssetID: "events/up-1"},
	}, got.Gallery)
	assert.Equal(t, []string{"events/g1"}, env.media.deleted)
	assert.Equal(t, "gala-night", got.Slug)
}

func TestUpdateEvent_JSONTitleChangeAndWarnings(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night")
	env.media.failDel["events/cover"] = true

	rec := env.doJSON(t, http.MethodPut, "/events/id/"+ev.ID+"?key="+testKey, map[string]any{
		"title":      "Gala Night Finals",
		"coverImage": "https://cdn.example/new-cover.jpg",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "gala-night-finals", got.Slug)
	assert.Equal(t, "https://cdn.example/new-cover.jpg", got.CoverImage)
	assert.Empty(t, got.CoverImageAssetID)

	var warnings []service.DeletionWarning
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(WarningsHeader)), &warnings))
	require.Len(t, warnings, 1)
	assert.Equal(t, "events/cover", warnings[0].AssetID)
	assert.Equal(t, service.ReasonCoverReplaced, warnings[0].Reason)
}

func TestUpdateEvent_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPut, "/events/id/"+store.NewID()+"?key="+testKey, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error.Code)
}

func TestUpdateEvent_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night")

	rec := env.doJSON(t, http.MethodPut, "/events/id/"+ev.ID+"?key=WRONG", map[string]any{"title": "Hijacked"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	got, err := env.store.FindByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gala Night", got.Title)
}

func TestDeleteEvent(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night",
		model.MediaRef{URL: "https://res.example/events/g1.jpg", AssetID: "events/g1"},
	)

	rec := env.do(t, http.MethodDelete, "/events/id/"+ev.ID+"?key="+testKey, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.ElementsMatch(t, []string{"events/cover", "events/g1"}, env.media.deleted)
	assert.Zero(t, env.count(t))
}

func TestDeleteEvent_CleanupFailureStillDeletes(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night")
	env.media.failDel["events/cover"] = true

	rec := env.do(t, http.MethodDelete, "/events/id/"+ev.ID+"?key="+testKey, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(WarningsHeader), "events/cover")
	assert.Zero(t, env.count(t))
}

func TestDeleteEvent_Unknown(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{store.NewID(), "not-an-id"} {
		rec := env.do(t, http.MethodDelete, "/events/id/"+id+"?key="+testKey, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestDeleteEvent_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Gala Night")

	rec := env.do(t, http.MethodDelete, "/events/id/"+ev.ID+"?key=WRONG", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int64(1), env.count(t))
	assert.Empty(t, env.media.deleted)
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"Gala Night", "Lagos Qualifier", "Abuja Workshop"} {
		env.seed(t, title)
	}

	tests := []struct {
		query      string
		wantItems  int
		wantLimit  int
		wantPages  int
		wantTotal  int64
		wantPageNo int
	}{
		{"", 3, 9, 1, 3, 1},
		{"?limit=2", 2, 2, 2, 3, 1},
		{"?limit=2&page=2", 1, 2, 2, 3, 2},
		{"?limit=abc&page=xyz", 3, 9, 1, 3, 1},
		{"?limit=0", 1, 1, 3, 3, 1},
		{"?limit=500", 3, 50, 1, 3, 1},
		{"?q=lagos", 1, 9, 1, 1, 1},
		{"?q=nothing-matches", 0, 9, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/events"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var page model.EventPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPageNo, page.Page)
		})
	}
}

func TestListEvents_EmptyItemsIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)
	ev := env.seed(t, "Nigeria's Historic Debut!")

	rec := env.do(t, http.MethodGet, "/events/nigerias-historic-debut", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bySlug model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bySlug))
	assert.Equal(t, ev.ID, bySlug.ID)

	rec = env.do(t, http.MethodGet, "/events/id/"+ev.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/events/unknown-slug", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/events/id/"+store.NewID(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendContact(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/email/contact", map[string]string{
		"name":    "Ada",
		"email":   "ada@example.com",
		"subject": "Tickets",
		"message": "How do I register?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ContactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "msg-123", resp.Data.ID)
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "ada@example.com", env.mailer.sent[0].ReplyTo)
	assert.Equal(t, "New Contact Form Submission: Tickets", env.mailer.sent[0].Subject)
}

func TestSendContact_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/email/contact", map[string]string{
		"name":  "Ada",
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeError(t, rec).Error.Details
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "subject")
	assert.Contains(t, details, "message")
	assert.Empty(t, env.mailer.sent)
}

func TestSendContact_MailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = &mail.SendError{Status: 422, Message: "bad from"}

	rec := env.doJSON(t, http.MethodPost, "/email/contact", map[string]string{
		"name":    "Ada",
		"email":   "ada@example.com",
		"subject": "Tickets",
		"message": "Hello",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "mail_failed", decodeError(t, rec).Error.Code)
}

func TestMediaSignature(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/media/signature?key="+testKey, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sig media.Signature
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sig))
	assert.Equal(t, "demo", sig.CloudName)
	assert.Equal(t, "123", sig.APIKey)
	assert.Equal(t, testNow.Unix(), sig.Timestamp)
	assert.Equal(t, media.DefaultSignatureFolder, sig.Folder)
	sum := sha1.Sum([]byte(fmt.Sprintf("folder=%s&timestamp=%dshh", media.DefaultSignatureFolder, testNow.Unix())))
	assert.Equal(t, hex.EncodeToString(sum[:]), sig.Signature)

	rec = env.doJSON(t, http.MethodPost, "/media/signature?key="+testKey, map[string]string{"folder": "events/gala"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sig))
	assert.Equal(t, "events/gala", sig.Folder)

	rec = env.doJSON(t, http.MethodPost, "/media/signature?key="+testKey, map[string]string{"folder": "../etc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/media/signature", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMediaSignature_NotConfigured(t *testing.T) {
	h := NewHandler(Options{
		Signer: media.NewClient(media.Config{}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rec := httptest.NewRecorder()
	h.MediaSignature(rec, httptest.NewRequest(http.MethodPost, "/media/signature", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "media_not_configured", decodeError(t, rec).Error.Code)
}
