// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/render"
	"github.com/olegiv/dwc-go/internal/seo"
	"github.com/olegiv/dwc-go/internal/service"
	"github.com/olegiv/dwc-go/internal/uikit"
)

// EventsHandler serves the public event pages and the management console.
type EventsHandler struct {
	events         *service.EventService
	renderer       *render.Renderer
	logger         *slog.Logger
	site           seo.Site
	maxUploadBytes int64
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(events *service.EventService, renderer *render.Renderer, logger *slog.Logger, site seo.Site, maxUploadBytes int64) *EventsHandler {
	return &EventsHandler{
		events:         events,
		renderer:       renderer,
		logger:         logger,
		site:           site,
		maxUploadBytes: maxUploadBytes,
	}
}

const eventListDescription = "News and results from International Dance Nigeria events."

// eventPath returns the public page path of an event.
func eventPath(slug string) string {
	return RouteEventList + "/" + url.PathEscape(slug)
}

// EventListData is the view model of the event list page.
type EventListData struct {
	Query      string
	Page       *model.EventPage
	Pagination uikit.Pagination
}

// EventDetailData is the view model of the event page.
type EventDetailData struct {
	Event *model.Event
}

// ManageData is the view model of the management console.
type ManageData struct {
	Key              string
	MaxUploadBytes   int64
	MinContentLength int
	MaxExcerptLength int
	MaxTitleLength   int
}

// List handles GET /event.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	page := 1
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 1 {
		page = n
	}

	result, err := h.events.List(r.Context(), model.ListQuery{Query: q, Page: page})
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		renderError(w, r, h.renderer, h.logger, http.StatusServiceUnavailable, "Events are unavailable right now. Please try again shortly.")
		return
	}

	title := "Events"
	if q != "" {
		title = "Events matching “" + q + "”"
	}
	canonical := h.site.BaseURL(r) + RouteEventList
	if result.Page > 1 {
		canonical += "?page=" + strconv.Itoa(result.Page)
	}
	meta := seo.ListMeta(title, eventListDescription, h.site, canonical)
	if q != "" {
		meta.Robots = seo.RobotsNoIndex
	}

	renderPage(w, r, h.renderer, h.logger, http.StatusOK, TemplateEventList, render.TemplateData{
		Title:       title,
		Description: eventListDescription,
		Breadcrumbs: uikit.Trail("Home", RouteRoot, "Events", RouteEventList),
		Meta:        meta,
		Data: EventListData{
			Query:      q,
			Page:       result,
			Pagination: uikit.BuildPagination(result.Page, result.TotalPages, result.Total, result.Limit, RouteEventList, r.URL.Query()),
		},
	})
}

// Detail handles GET /event/{slug}.
func (h *EventsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			renderError(w, r, h.renderer, h.logger, http.StatusNotFound, "We could not find that event.")
			return
		}
		h.logger.Error("failed to load event", "slug", chi.URLParam(r, "slug"), "error", err)
		renderError(w, r, h.renderer, h.logger, http.StatusServiceUnavailable, "This event is unavailable right now. Please try again shortly.")
		return
	}

	meta := seo.EventMeta(ev, h.site, h.site.BaseURL(r), eventPath(ev.Slug))
	renderPage(w, r, h.renderer, h.logger, http.StatusOK, TemplateEventDetail, render.TemplateData{
		Title:       ev.Title,
		Description: meta.Description,
		Breadcrumbs: uikit.Trail("Home", RouteRoot, "Events", RouteEventList, ev.Title, ""),
		Meta:        meta,
		Data:        EventDetailData{Event: ev},
	})
}

// Manage handles GET /event/manage. The route is gated by the management
// key, which the page hands to its script for API calls.
func (h *EventsHandler) Manage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, h.logger, http.StatusOK, TemplateEventManage, render.TemplateData{
		Title: "Manage events",
		Data: ManageData{
			Key:              middleware.RequestKey(r),
			MaxUploadBytes:   h.maxUploadBytes,
			MinContentLength: model.MinContentLength,
			MaxExcerptLength: model.MaxExcerptLength,
			MaxTitleLength:   model.MaxTitleLength,
		},
	})
}

// NotFound renders the error page for unmatched routes.
func (h *EventsHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, h.renderer, h.logger, http.StatusNotFound, "Page not found")
}
