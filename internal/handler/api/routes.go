// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/dwc-go/internal/middleware"
)

// API route paths.
const (
	RouteEvents         = "/events"
	RouteEventBySlug    = "/events/{slug}"
	RouteEventByID      = "/events/id/{id}"
	RouteContact        = "/email/contact"
	RouteMediaSignature = "/media/signature"
)

// RouteOptions holds the middleware applied to API route groups. Nil
// limiters disable rate limiting for their group.
type RouteOptions struct {
	Auth           *middleware.ManageAuth
	WriteLimiter   *middleware.RateLimiter
	ContactLimiter *middleware.RateLimiter
}

// Register mounts the API routes on r. Key checks run before any body is
// read.
func Register(r chi.Router, h *Handler, opts RouteOptions) {
	r.Get(RouteEvents, h.ListEvents)
	r.Get(RouteEventBySlug, h.GetEventBySlug)
	r.Get(RouteEventByID, h.GetEventByID)

	r.Group(func(r chi.Router) {
		if opts.WriteLimiter != nil {
			r.Use(opts.WriteLimiter.Middleware())
		}
		r.Use(opts.Auth.API)

		r.Post(RouteEvents, h.CreateEvent)
		r.Put(RouteEventByID, h.UpdateEvent)
		r.Delete(RouteEventByID, h.DeleteEvent)
		r.Post(RouteMediaSignature, h.MediaSignature)
	})

	r.Group(func(r chi.Router) {
		if opts.ContactLimiter != nil {
			r.Use(opts.ContactLimiter.Middleware())
		}
		r.Post(RouteContact, h.SendContact)
	})
}
