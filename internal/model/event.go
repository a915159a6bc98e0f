// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the content types shared by the store, service and
// handler layers.
package model

import (
	"encoding/json"
	"math"
	"time"
)

// Field limits for event records.
const (
	MaxExcerptLength = 300
	MinContentLength = 10
	DefaultSlugBase  = "post"
	MaxTitleLength   = 200
	DefaultListLimit = 9
	MaxListLimit     = 50

	// MaxListPage keeps (page-1)*limit well inside int64.
	MaxListPage = math.MaxInt32
)

// MediaRef is one hosted image: its public URL and the provider's asset id.
// AssetID is empty for images that were pasted as URLs rather than uploaded.
type MediaRef struct {
	URL     string
	AssetID string
}

// Key identifies the entry in keep-lists: the asset id, or the URL when the
// entry has no asset id.
func (m MediaRef) Key() string {
	if m.AssetID != "" {
		return m.AssetID
	}
	return m.URL
}

// Event is a published event post.
type Event struct {
	ID                string
	Slug              string
	Title             string
	Excerpt           string
	ContentHTML       string
	CoverImage        string
	CoverImageAssetID string
	Gallery           []MediaRef
	Videos            []string
	Tags              []string
	PublishedAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AssetIDs returns every provider asset id the event references, cover first.
func (e *Event) AssetIDs() []string {
	var ids []string
	if e.CoverImageAssetID != "" {
		ids = append(ids, e.CoverImageAssetID)
	}
	for _, m := range e.Gallery {
		if m.AssetID != "" {
			ids = append(ids, m.AssetID)
		}
	}
	return ids
}

// eventJSON is the wire form. images and imagesAssetIds are derived from
// Gallery so they always have the same length.
type eventJSON struct {
	ID                string    `json:"id"`
	Slug              string    `json:"slug"`
	Title             string    `json:"title"`
	Excerpt           string    `json:"excerpt"`
	ContentHTML       string    `json:"contentHtml"`
	CoverImage        string    `json:"coverImage"`
	CoverImageAssetID string    `json:"coverImageAssetId,omitempty"`
	Images            []string  `json:"images"`
	ImagesAssetIDs    []string  `json:"imagesAssetIds"`
	Videos            []string  `json:"videos"`
	Tags              []string  `json:"tags"`
	PublishedAt       time.Time `json:"publishedAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:                e.ID,
		Slug:              e.Slug,
		Title:             e.Title,
		Excerpt:           e.Excerpt,
		ContentHTML:       e.ContentHTML,
		CoverImage:        e.CoverImage,
		CoverImageAssetID: e.CoverImageAssetID,
		Images:            make([]string, len(e.Gallery)),
		ImagesAssetIDs:    make([]string, len(e.Gallery)),
		Videos:            nonNil(e.Videos),
		Tags:              nonNil(e.Tags),
		PublishedAt:       e.PublishedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	for i, m := range e.Gallery {
		out.Images[i] = m.URL
		out.ImagesAssetIDs[i] = m.AssetID
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Missing asset ids are treated
// as empty so the gallery is always rebuilt pairwise.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{
		ID:                in.ID,
		Slug:              in.Slug,
		Title:             in.Title,
		Excerpt:           in.Excerpt,
		ContentHTML:       in.ContentHTML,
		CoverImage:        in.CoverImage,
		CoverImageAssetID: in.CoverImageAssetID,
		Gallery:           PairGallery(in.Images, in.ImagesAssetIDs),
		Videos:            in.Videos,
		Tags:              in.Tags,
		PublishedAt:       in.PublishedAt,
		CreatedAt:         in.CreatedAt,
		UpdatedAt:         in.UpdatedAt,
	}
	return nil
}

// PairGallery zips parallel URL and asset id lists. Asset ids beyond the
// URL list are dropped; URLs without a matching asset id get an empty one.
func PairGallery(urls, assetIDs []string) []MediaRef {
	if len(urls) == 0 {
		return nil
	}
	out := make([]MediaRef, len(urls))
	for i, u := range urls {
		out[i].URL = u
		if i < len(assetIDs) {
			out[i].AssetID = assetIDs[i]
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EventSummary is the list projection of an Event. It carries no body.
type EventSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt"`
	CoverImage  string    `json:"coverImage"`
	PublishedAt time.Time `json:"publishedAt"`
}

// EventPage is one page of list results.
type EventPage struct {
	Items      []EventSummary `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// ListQuery selects a page of events. Query is matched as a case-insensitive
// substring against title, slug and tags.
type ListQuery struct {
	Query string
	Page  int
	Limit int
}

// Normalize clamps Page to [1, MaxListPage] and Limit to [1, MaxListLimit].
// A zero Limit means unset and falls back to DefaultListLimit.
func (q ListQuery) Normalize() ListQuery {
	switch {
	case q.Page < 1:
		q.Page = 1
	case q.Page > MaxListPage:
		q.Page = MaxListPage
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultListLimit
	case q.Limit < 1:
		q.Limit = 1
	case q.Limit > MaxListLimit:
		q.Limit = MaxListLimit
	}
	return q
}

// Skip returns the number of records before the requested page, using the
// normalized page and limit.
func (q ListQuery) Skip() int64 {
	q = q.Normalize()
	return int64(q.Page-1) * int64(q.Limit)
}

// TotalPages computes ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
