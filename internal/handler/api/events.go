// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/service"
)

// ListEvents handles GET /events?q=&page=&limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.events.List(r.Context(), model.ListQuery{
		Query: q.Get("q"),
		Page:  parseIntParam(q.Get("page"), 1),
		Limit: parseIntParam(q.Get("limit"), model.DefaultListLimit),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []model.EventSummary{}
	}
	WriteJSON(w, http.StatusOK, page)
}

// parseIntParam returns def for missing or unparsable values. Parsed values
// below 1 become 1 so "limit=0" does not fall back to the default.
func parseIntParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(n, 1)
}

// GetEventBySlug handles GET /events/{slug}.
func (h *Handler) GetEventBySlug(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ev)
}

// GetEventByID handles GET /events/id/{id}.
func (h *Handler) GetEventByID(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ev)
}

// CreateEvent handles POST /events with a JSON or multipart body.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	cmd, err := form.createCommand()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.events.Create(r.Context(), cmd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, res.Event)
}

// UpdateEvent handles PUT /events/id/{id} with a JSON or multipart body.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	cmd, err := form.updateCommand(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.events.Update(r.Context(), cmd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	setWarnings(w, res.Warnings)
	WriteJSON(w, http.StatusOK, res.Event)
}

// DeleteEvent handles DELETE /events/id/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.events.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	setWarnings(w, res.Warnings)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*eventForm, bool) {
	form, err := h.decodeEventForm(w, r)
	if err == nil {
		return form, true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", nil)
	case errors.Is(err, errBadBody):
		WriteBadRequest(w, "Invalid request body", nil)
	default:
		h.writeServiceError(w, r, err)
	}
	return nil, false
}

// setWarnings reports cleanup failures as a JSON array header so the body
// stays the bare record.
func setWarnings(w http.ResponseWriter, warnings []service.DeletionWarning) {
	if len(warnings) == 0 {
		return
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return
	}
	w.Header().Set(WarningsHeader, string(data))
}
