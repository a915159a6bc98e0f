// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/seo"
	"github.com/olegiv/dwc-go/internal/service"
)

// crawlerDisallow are the paths kept out of search indexes.
var crawlerDisallow = []string{
	RouteEventManage,
	RouteContact,
	RouteHealth,
	"/metrics",
	"/media/",
	"/email/",
}

// SEOHandler serves robots.txt and sitemap.xml.
type SEOHandler struct {
	events *service.EventService
	site   seo.Site
	isDev  bool
	logger *slog.Logger
}

// NewSEOHandler creates a new SEOHandler. Development servers ask crawlers
// to stay away entirely.
func NewSEOHandler(events *service.EventService, site seo.Site, isDev bool, logger *slog.Logger) *SEOHandler {
	return &SEOHandler{events: events, site: site, isDev: isDev, logger: logger}
}

// Robots handles GET /robots.txt.
func (h *SEOHandler) Robots(w http.ResponseWriter, r *http.Request) {
	content := seo.NewRobotsBuilder(seo.RobotsConfig{
		BaseURL:       h.site.BaseURL(r),
		DisallowAll:   h.isDev,
		DisallowPaths: crawlerDisallow,
	}).Build()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(content))
}

// Sitemap handles GET /sitemap.xml. Events are paged through newest first
// until the list is exhausted or the sitemap is full.
func (h *SEOHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	b := seo.NewSitemapBuilder(h.site.BaseURL(r))

	for page := 1; ; page++ {
		result, err := h.events.List(r.Context(), model.ListQuery{Page: page, Limit: model.MaxListLimit})
		if err != nil {
			h.logger.Error("failed to build sitemap", "page", page, "error", err)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		if page == 1 {
			var latest time.Time
			if len(result.Items) > 0 {
				latest = result.Items[0].PublishedAt
			}
			b.Add(RouteEventList, latest, seo.ChangeFreqDaily, "1.0")
		}
		for _, ev := range result.Items {
			if !b.Add(eventPath(ev.Slug), ev.PublishedAt, seo.ChangeFreqMonthly, "0.8") {
				break
			}
		}
		if page >= result.TotalPages || b.Len() >= seo.MaxSitemapURLs {
			break
		}
	}

	out, err := b.Build()
	if err != nil {
		logAndInternalError(w, h.logger, "failed to encode sitemap", "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(out)
}
