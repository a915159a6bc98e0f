// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seo builds page meta tags, structured data, robots.txt and
// sitemaps for the public event pages.
package seo

import (
	"encoding/json"
	"html"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/uikit"
)

// DescriptionLength is the rune limit of generated descriptions.
const DescriptionLength = 160

// Robots directives.
const (
	RobotsIndex   = "index,follow"
	RobotsNoIndex = "noindex,nofollow"
)

var textPolicy = bluemonday.StrictPolicy()

// Site holds site-wide settings.
type Site struct {
	Name string
	// URL is the absolute base URL. Empty derives it from each request.
	URL string
}

// BaseURL returns the configured base URL without a trailing slash, or one
// built from the request host.
func (s Site) BaseURL(r *http.Request) string {
	if s.URL != "" {
		return strings.TrimRight(s.URL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// Meta holds the meta tags of one page.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Image       string
	Type        string // website or article
	SiteName    string
	Robots      string
	JSONLD      template.JS
}

// EventMeta builds the meta tags of an event page served at path. The
// description falls back to the content text when there is no excerpt.
func EventMeta(ev *model.Event, site Site, baseURL, path string) *Meta {
	desc := strings.TrimSpace(ev.Excerpt)
	if desc == "" {
		desc = PlainText(ev.ContentHTML)
	}
	m := &Meta{
		Title:       ev.Title,
		Description: uikit.Truncate(desc, DescriptionLength),
		Canonical:   baseURL + path,
		Image:       AbsoluteURL(ev.CoverImage, baseURL),
		Type:        "article",
		SiteName:    site.Name,
		Robots:      RobotsIndex,
	}
	m.JSONLD = articleSchema(ev, m)
	return m
}

// ListMeta builds the meta tags of a listing page.
func ListMeta(title, description string, site Site, canonical string) *Meta {
	return &Meta{
		Title:       title,
		Description: description,
		Canonical:   canonical,
		Type:        "website",
		SiteName:    site.Name,
		Robots:      RobotsIndex,
	}
}

// PlainText strips tags from rendered HTML and collapses whitespace.
func PlainText(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// AbsoluteURL prefixes relative URLs with baseURL.
func AbsoluteURL(u, baseURL string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return strings.TrimRight(baseURL, "/") + u
}

type articleJSON struct {
	Context          string   `json:"@context"`
	Type             string   `json:"@type"`
	Headline         string   `json:"headline"`
	Description      string   `json:"description,omitempty"`
	Image            string   `json:"image,omitempty"`
	DatePublished    string   `json:"datePublished,omitempty"`
	DateModified     string   `json:"dateModified,omitempty"`
	MainEntityOfPage string   `json:"mainEntityOfPage,omitempty"`
	Keywords         string   `json:"keywords,omitempty"`
	Publisher        *orgJSON `json:"publisher,omitempty"`
}

type orgJSON struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

func articleSchema(ev *model.Event, m *Meta) template.JS {
	a := articleJSON{
		Context:          "https://schema.org",
		Type:             "NewsArticle",
		Headline:         ev.Title,
		Description:      m.Description,
		Image:            m.Image,
		MainEntityOfPage: m.Canonical,
		Keywords:         strings.Join(ev.Tags, ", "),
	}
	if !ev.PublishedAt.IsZero() {
		a.DatePublished = ev.PublishedAt.UTC().Format(time.RFC3339)
	}
	if !ev.UpdatedAt.IsZero() {
		a.DateModified = ev.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if m.SiteName != "" {
		a.Publisher = &orgJSON{Type: "Organization", Name: m.SiteName}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return template.JS(data)
}
