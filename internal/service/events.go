// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements event management and contact delivery on top
// of the store, media and mail clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegiv/dwc-go/internal/cache"
	"github.com/olegiv/dwc-go/internal/imaging"
	"github.com/olegiv/dwc-go/internal/logging"
	"github.com/olegiv/dwc-go/internal/media"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/store"
	"github.com/olegiv/dwc-go/internal/util"
)

// maxSlugRetries bounds how often a write that lost a slug race is retried
// with a freshly generated slug.
const maxSlugRetries = 3

// writeTimeout bounds the store write that follows the uploads. The write
// is detached from the request so a disconnect cannot abandon it midway.
const writeTimeout = 15 * time.Second

// Uploader stores and removes hosted images.
type Uploader interface {
	AssetDeleter
	Upload(ctx context.Context, data []byte, opts media.UploadOptions) (*media.Asset, error)
}

// ImagePreparer normalizes raw image bytes before upload.
type ImagePreparer interface {
	Prepare(data []byte) (*imaging.Result, error)
}

// EventServiceOptions configures NewEventService.
type EventServiceOptions struct {
	Store          store.EventStore
	Media          Uploader
	Images         ImagePreparer // nil uploads files unchanged
	Cache          *cache.EventCache
	Logger         *slog.Logger
	Metrics        Metrics
	Folder         string
	CleanupTimeout time.Duration
	Now            func() time.Time
}

// EventService owns the create, update and delete flows, including media
// uploads and reconciliation of hosted assets.
type EventService struct {
	store   store.EventStore
	media   Uploader
	images  ImagePreparer
	cache   *cache.EventCache
	cleaner *Cleaner
	logger  *slog.Logger
	metrics Metrics
	folder  string
	now     func() time.Time
}

// MutationResult is returned by Create, Update and Delete. Warnings lists
// asset cleanup failures; they never fail the operation.
type MutationResult struct {
	Event    *model.Event
	Warnings []DeletionWarning
}

// NewEventService creates an EventService.
func NewEventService(opts EventServiceOptions) *EventService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &EventService{
		store:   opts.Store,
		media:   opts.Media,
		images:  opts.Images,
		cache:   opts.Cache,
		cleaner: NewCleaner(opts.Media, opts.CleanupTimeout, opts.Logger, opts.Metrics),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		folder:  opts.Folder,
		now:     opts.Now,
	}
}

// List returns one page of event summaries, newest first.
func (s *EventService) List(ctx context.Context, q model.ListQuery) (*model.EventPage, error) {
	q.Query = strings.TrimSpace(q.Query)
	q = q.Normalize()

	if page, ok := s.cache.GetPage(ctx, q); ok {
		return page, nil
	}

	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	page := &model.EventPage{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: model.TotalPages(total, q.Limit),
	}
	if err := s.cache.SetPage(ctx, q, page); err != nil {
		s.logger.Warn("failed to cache event page", "error", err, "category", logging.CategoryCache)
	}
	return page, nil
}

// GetBySlug returns the full record with slug.
func (s *EventService) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	if ev, ok := s.cache.GetBySlug(ctx, slug); ok {
		return ev, nil
	}
	ev, err := s.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, ev)
	return ev, nil
}

// GetByID returns the full record with id.
func (s *EventService) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if ev, ok := s.cache.GetByID(ctx, id); ok {
		return ev, nil
	}
	ev, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, ev)
	return ev, nil
}

// Create validates cmd, uploads its files in order, assigns a unique slug and
// persists the record. If any upload or the write fails, the uploads already
// made for this request are deleted and nothing is persisted.
func (s *EventService) Create(ctx context.Context, cmd CreateEventCommand) (res *MutationResult, err error) {
	defer func() { s.metrics.EventMutation("create", err == nil) }()

	ev, err := s.validateCreate(cmd)
	if err != nil {
		return nil, err
	}

	cover, gallery, err := s.prepareFiles(cmd.CoverFile, cmd.GalleryFiles)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.uploadAll(ctx, cover, gallery)
	if err != nil {
		return nil, err
	}
	if uploaded.cover != nil {
		ev.CoverImage = uploaded.cover.URL
		ev.CoverImageAssetID = uploaded.cover.AssetID
	}
	ev.Gallery = append(ev.Gallery, uploaded.gallery...)

	// A cancelled request must not leave a record pointing at uploads
	// that are about to be rolled back.
	if err := ctx.Err(); err != nil {
		s.rollback(ctx, uploaded)
		return nil, err
	}

	now := s.now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = now
	}

	wctx, cancel := detached(ctx)
	created, err := s.insertWithUniqueSlug(wctx, ev)
	cancel()
	if err != nil {
		// The server may have applied the insert before the error surfaced.
		if found := s.committed(ctx, ev, err, true); found != nil {
			s.logger.Warn("insert reported an error but the record exists", "slug", ev.Slug, "error", err)
			created, err = found, nil
		}
	}
	if err != nil {
		s.rollback(ctx, uploaded)
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("event created", "id", created.ID, "slug", created.Slug, "uploads", uploaded.count())
	return &MutationResult{Event: created}, nil
}

// Update applies cmd to the stored record. Replaced covers and gallery
// entries dropped by the keep-list or replacement gallery are deleted from
// the media host after the record is written.
func (s *EventService) Update(ctx context.Context, cmd UpdateEventCommand) (res *MutationResult, err error) {
	defer func() { s.metrics.EventMutation("update", err == nil) }()

	existing, err := s.store.FindByID(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	ev, err := s.validateUpdate(existing, &cmd)
	if err != nil {
		return nil, err
	}

	cover, gallery, err := s.prepareFiles(cmd.CoverFile, cmd.GalleryFiles)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.uploadAll(ctx, cover, gallery)
	if err != nil {
		return nil, err
	}

	var tasks []CleanupTask

	switch {
	case uploaded.cover != nil:
		ev.CoverImage = uploaded.cover.URL
		ev.CoverImageAssetID = uploaded.cover.AssetID
	case cmd.CoverImage != nil && ev.CoverImage != existing.CoverImage:
		ev.CoverImageAssetID = ""
		if cmd.CoverImageAssetID != nil {
			ev.CoverImageAssetID = strings.TrimSpace(*cmd.CoverImageAssetID)
		}
	}
	if existing.CoverImageAssetID != "" && existing.CoverImageAssetID != ev.CoverImageAssetID {
		tasks = append(tasks, CleanupTask{AssetID: existing.CoverImageAssetID, Reason: ReasonCoverReplaced})
	}

	final, removed := ReconcileGallery(existing.Gallery, cmd)
	ev.Gallery = append(final, uploaded.gallery...)
	for _, m := range removed {
		if m.AssetID != "" {
			tasks = append(tasks, CleanupTask{AssetID: m.AssetID, Reason: ReasonGalleryRemoved})
		}
	}

	tasks = dropReferenced(tasks, ev)

	titleChanged := ev.Title != existing.Title
	if titleChanged {
		if ev.Slug, err = GenerateUniqueSlug(ctx, s.store, ev.Title, ev.ID, s.now); err != nil {
			s.rollback(ctx, uploaded)
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		s.rollback(ctx, uploaded)
		return nil, err
	}

	ev.UpdatedAt = s.now().UTC()
	wctx, cancel := detached(ctx)
	err = s.replaceWithUniqueSlug(wctx, ev, titleChanged)
	cancel()
	if err != nil && s.committed(ctx, ev, err, false) != nil {
		s.logger.Warn("update reported an error but the record was written", "id", ev.ID, "error", err)
		err = nil
	}
	if err != nil {
		s.rollback(ctx, uploaded)
		return nil, err
	}

	s.invalidate(ctx)
	warnings := s.cleaner.Run(ctx, tasks)
	s.logger.Info("event updated",
		"id", ev.ID,
		"slug", ev.Slug,
		"uploads", uploaded.count(),
		"removed_assets", len(tasks),
		"cleanup_warnings", len(warnings),
	)
	return &MutationResult{Event: ev, Warnings: warnings}, nil
}

// Delete removes the record after attempting to delete its cover and every
// gallery asset. Cleanup failures are returned as warnings.
func (s *EventService) Delete(ctx context.Context, id string) (res *MutationResult, err error) {
	defer func() { s.metrics.EventMutation("delete", err == nil) }()

	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tasks := make([]CleanupTask, 0, len(existing.Gallery)+1)
	for _, assetID := range existing.AssetIDs() {
		tasks = append(tasks, CleanupTask{AssetID: assetID, Reason: ReasonEventDeleted})
	}
	warnings := s.cleaner.Run(ctx, tasks)

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("event deleted", "id", id, "slug", existing.Slug, "cleanup_warnings", len(warnings))
	return &MutationResult{Event: existing, Warnings: warnings}, nil
}

// ReconcileGallery computes the gallery that results from cmd, excluding new
// uploads, and the existing entries that are no longer referenced.
//
// In keep-list mode the kept entries stay in their original order followed
// by cmd.Gallery entries not already present. In replace mode cmd.Gallery is
// the new gallery; entries that match an existing URL inherit its asset id.
// Otherwise the existing gallery is kept unchanged.
func ReconcileGallery(existing []model.MediaRef, cmd UpdateEventCommand) (final, removed []model.MediaRef) {
	switch {
	case cmd.KeepProvided:
		keep := make(map[string]bool, len(cmd.Keep))
		for _, k := range cmd.Keep {
			keep[k] = true
		}
		present := make(map[string]bool, len(existing))
		for _, m := range existing {
			if keep[m.Key()] || (m.AssetID != "" && keep[m.URL]) {
				final = append(final, m)
				present[m.Key()] = true
			} else {
				removed = append(removed, m)
			}
		}
		for _, m := range cmd.Gallery {
			if !present[m.Key()] {
				final = append(final, m)
				present[m.Key()] = true
			}
		}

	case cmd.GalleryProvided:
		byURL := make(map[string]model.MediaRef, len(existing))
		for _, m := range existing {
			byURL[m.URL] = m
		}
		present := make(map[string]bool, len(cmd.Gallery))
		for _, m := range cmd.Gallery {
			if prev, ok := byURL[m.URL]; ok && m.AssetID == "" {
				m.AssetID = prev.AssetID
			}
			if present[m.Key()] {
				continue
			}
			final = append(final, m)
			present[m.Key()] = true
		}
		for _, m := range existing {
			if !present[m.Key()] {
				removed = append(removed, m)
			}
		}

	default:
		final = append(final, existing...)
	}
	return final, removed
}

func (s *EventService) validateCreate(cmd CreateEventCommand) (*model.Event, error) {
	ve := &ValidationError{}

	ev := &model.Event{
		Title:             strings.TrimSpace(cmd.Title),
		Excerpt:           strings.TrimSpace(cmd.Excerpt),
		ContentHTML:       SanitizeContent(cmd.ContentHTML),
		CoverImage:        strings.TrimSpace(cmd.CoverImage),
		CoverImageAssetID: strings.TrimSpace(cmd.CoverImageAssetID),
		Videos:            cleanList(cmd.Videos),
		Tags:              cleanTags(cmd.Tags),
	}
	if cmd.PublishedAt != nil {
		ev.PublishedAt = cmd.PublishedAt.UTC()
	}

	checkTitle(ve, ev.Title)
	checkExcerpt(ve, ev.Excerpt)
	if ev.ContentHTML == "" {
		ve.Add("contentHtml", "is required")
	}
	switch {
	case cmd.CoverFile != nil:
		ev.CoverImage, ev.CoverImageAssetID = "", ""
	case ev.CoverImage == "":
		ve.Add("coverImage", "a cover image URL or file is required")
	default:
		checkURL(ve, "coverImage", ev.CoverImage)
	}

	ev.Gallery = cleanGallery(ve, cmd.Gallery)
	checkURLs(ve, "videos", ev.Videos)

	if err := ve.ErrOrNil(); err != nil {
		return nil, err
	}
	return ev, nil
}

// validateUpdate applies the scalar fields of cmd to a copy of existing and
// cleans cmd.Gallery in place.
func (s *EventService) validateUpdate(existing *model.Event, cmd *UpdateEventCommand) (*model.Event, error) {
	ve := &ValidationError{}
	ev := *existing

	if cmd.Title != nil {
		ev.Title = strings.TrimSpace(*cmd.Title)
		checkTitle(ve, ev.Title)
	}
	if cmd.Excerpt != nil {
		ev.Excerpt = strings.TrimSpace(*cmd.Excerpt)
		checkExcerpt(ve, ev.Excerpt)
	}
	if cmd.ContentHTML != nil {
		ev.ContentHTML = SanitizeContent(*cmd.ContentHTML)
		if ev.ContentHTML == "" {
			ve.Add("contentHtml", "is required")
		}
	}
	if cmd.CoverImage != nil && cmd.CoverFile == nil {
		ev.CoverImage = strings.TrimSpace(*cmd.CoverImage)
		if ev.CoverImage == "" {
			ve.Add("coverImage", "a cover image URL or file is required")
		} else {
			checkURL(ve, "coverImage", ev.CoverImage)
		}
	}
	if cmd.Videos != nil {
		ev.Videos = cleanList(*cmd.Videos)
		checkURLs(ve, "videos", ev.Videos)
	}
	if cmd.Tags != nil {
		ev.Tags = cleanTags(*cmd.Tags)
	}
	if cmd.PublishedAt != nil {
		ev.PublishedAt = cmd.PublishedAt.UTC()
	}
	cmd.Gallery = cleanGallery(ve, cmd.Gallery)

	if err := ve.ErrOrNil(); err != nil {
		return nil, err
	}
	return &ev, nil
}

type preparedFile struct {
	name string
	data []byte
}

// prepareFiles normalizes every file before anything is uploaded so a bad
// file is rejected without side effects.
func (s *EventService) prepareFiles(cover *FileUpload, gallery []FileUpload) (*preparedFile, []preparedFile, error) {
	ve := &ValidationError{}

	var preparedCover *preparedFile
	if cover != nil {
		if pf, err := s.prepare(*cover); err != nil {
			ve.Add("coverFile", err.Error())
		} else {
			preparedCover = pf
		}
	}

	preparedGallery := make([]preparedFile, 0, len(gallery))
	for i, f := range gallery {
		pf, err := s.prepare(f)
		if err != nil {
			ve.Add(fmt.Sprintf("imageFiles[%d]", i), err.Error())
			continue
		}
		preparedGallery = append(preparedGallery, *pf)
	}

	if err := ve.ErrOrNil(); err != nil {
		return nil, nil, err
	}
	return preparedCover, preparedGallery, nil
}

func (s *EventService) prepare(f FileUpload) (*preparedFile, error) {
	if len(f.Data) == 0 {
		return nil, errors.New("file is empty")
	}
	if s.images == nil {
		return &preparedFile{name: f.Filename, data: f.Data}, nil
	}
	res, err := s.images.Prepare(f.Data)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, errors.New("must be a JPEG, PNG, GIF or WebP image")
		}
		return nil, errors.New("could not be decoded as an image")
	}
	return &preparedFile{name: f.Filename, data: res.Data}, nil
}

type uploadSet struct {
	cover   *model.MediaRef
	gallery []model.MediaRef
}

func (u uploadSet) count() int {
	n := len(u.gallery)
	if u.cover != nil {
		n++
	}
	return n
}

func (u uploadSet) assetIDs() []string {
	var ids []string
	if u.cover != nil {
		ids = append(ids, u.cover.AssetID)
	}
	for _, m := range u.gallery {
		ids = append(ids, m.AssetID)
	}
	return ids
}

// uploadAll uploads the cover then the gallery files in submission order.
// On failure the uploads already made are rolled back.
func (s *EventService) uploadAll(ctx context.Context, cover *preparedFile, gallery []preparedFile) (uploadSet, error) {
	var out uploadSet

	if cover != nil {
		ref, err := s.upload(ctx, *cover)
		if err != nil {
			return uploadSet{}, fmt.Errorf("uploading cover image: %w", err)
		}
		out.cover = ref
	}

	for i, f := range gallery {
		ref, err := s.upload(ctx, f)
		if err != nil {
			s.rollback(ctx, out)
			return uploadSet{}, fmt.Errorf("uploading gallery image %d: %w", i+1, err)
		}
		out.gallery = append(out.gallery, *ref)
	}
	return out, nil
}

func (s *EventService) upload(ctx context.Context, f preparedFile) (*model.MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	asset, err := s.media.Upload(ctx, f.data, media.UploadOptions{
		Folder:   s.folder,
		PublicID: util.AssetName(f.name),
	})
	s.metrics.MediaUpload(err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("cloudinary upload failed", "file", f.name, "error", err, "category", logging.CategoryMedia)
		return nil, err
	}
	return &model.MediaRef{URL: asset.URL, AssetID: asset.AssetID}, nil
}

func (s *EventService) rollback(ctx context.Context, u uploadSet) {
	ids := u.assetIDs()
	if len(ids) == 0 {
		return
	}
	tasks := make([]CleanupTask, len(ids))
	for i, id := range ids {
		tasks[i] = CleanupTask{AssetID: id, Reason: ReasonRollback}
	}
	s.cleaner.Run(ctx, tasks)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// committed re-reads ev after a write failed with an error that does not
// rule out success, and returns the stored record when it matches what was
// written. Inserts are looked up by slug, replacements by id.
func (s *EventService) committed(ctx context.Context, ev *model.Event, writeErr error, insert bool) *model.Event {
	if errors.Is(writeErr, store.ErrDuplicateSlug) || errors.Is(writeErr, store.ErrNotFound) {
		return nil
	}
	rctx, cancel := detached(ctx)
	defer cancel()

	var found *model.Event
	var err error
	if insert {
		if ev.Slug == "" {
			return nil
		}
		found, err = s.store.FindBySlug(rctx, ev.Slug)
	} else {
		found, err = s.store.FindByID(rctx, ev.ID)
	}
	if err != nil || !sameWrite(found, ev) {
		return nil
	}
	return found
}

// sameWrite reports whether stored carries the write of ev. Stores may keep
// timestamps at millisecond precision.
func sameWrite(stored, ev *model.Event) bool {
	return stored.Slug == ev.Slug &&
		stored.Title == ev.Title &&
		stored.CoverImage == ev.CoverImage &&
		stored.UpdatedAt.Sub(ev.UpdatedAt).Abs() < time.Millisecond
}

func (s *EventService) insertWithUniqueSlug(ctx context.Context, ev *model.Event) (*model.Event, error) {
	for attempt := 0; ; attempt++ {
		slug, err := GenerateUniqueSlug(ctx, s.store, ev.Title, "", s.now)
		if err != nil {
			return nil, err
		}
		ev.Slug = slug

		created, err := s.store.Insert(ctx, ev)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateSlug) || attempt+1 >= maxSlugRetries {
			return nil, err
		}
		s.logger.Warn("slug taken by concurrent write, retrying", "slug", slug, "attempt", attempt+1)
	}
}

func (s *EventService) replaceWithUniqueSlug(ctx context.Context, ev *model.Event, regenerate bool) error {
	for attempt := 0; ; attempt++ {
		err := s.store.Replace(ctx, ev)
		if err == nil {
			return nil
		}
		if !regenerate || !errors.Is(err, store.ErrDuplicateSlug) || attempt+1 >= maxSlugRetries {
			return err
		}
		s.logger.Warn("slug taken by concurrent write, retrying", "slug", ev.Slug, "attempt", attempt+1)
		if ev.Slug, err = GenerateUniqueSlug(ctx, s.store, ev.Title, ev.ID, s.now); err != nil {
			return err
		}
	}
}

func (s *EventService) remember(ctx context.Context, ev *model.Event) {
	if err := s.cache.SetEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to cache event", "slug", ev.Slug, "error", err, "category", logging.CategoryCache)
	}
}

func (s *EventService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to invalidate event cache", "error", err, "category", logging.CategoryCache)
	}
}

// dropReferenced removes tasks for assets the updated record still uses,
// such as a gallery image promoted to cover.
func dropReferenced(tasks []CleanupTask, ev *model.Event) []CleanupTask {
	inUse := make(map[string]bool)
	for _, id := range ev.AssetIDs() {
		inUse[id] = true
	}
	out := tasks[:0]
	for _, t := range tasks {
		if !inUse[t.AssetID] {
			out = append(out, t)
		}
	}
	return out
}

func checkTitle(ve *ValidationError, title string) {
	switch {
	case title == "":
		ve.Add("title", "is required")
	case utf8.RuneCountInString(title) > model.MaxTitleLength:
		ve.Add("title", fmt.Sprintf("must be at most %d characters", model.MaxTitleLength))
	}
}

func checkExcerpt(ve *ValidationError, excerpt string) {
	if utf8.RuneCountInString(excerpt) > model.MaxExcerptLength {
		ve.Add("excerpt", fmt.Sprintf("must be at most %d characters", model.MaxExcerptLength))
	}
}

func checkURL(ve *ValidationError, field, raw string) {
	if err := util.ValidateMediaURL(raw); err != nil {
		ve.Add(field, err.Error())
	}
}

func checkURLs(ve *ValidationError, field string, urls []string) {
	for i, u := range urls {
		checkURL(ve, fmt.Sprintf("%s[%d]", field, i), u)
	}
}

// cleanGallery trims entries, drops blank URLs and validates the rest.
func cleanGallery(ve *ValidationError, in []model.MediaRef) []model.MediaRef {
	var out []model.MediaRef
	for _, m := range in {
		m.URL = strings.TrimSpace(m.URL)
		m.AssetID = strings.TrimSpace(m.AssetID)
		if m.URL == "" {
			continue
		}
		checkURL(ve, fmt.Sprintf("images[%d]", len(out)), m.URL)
		out = append(out, m)
	}
	return out
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanTags trims tags and drops case-insensitive duplicates.
func cleanTags(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range cleanList(in) {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
