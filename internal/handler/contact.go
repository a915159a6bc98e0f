// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/render"
	"github.com/olegiv/dwc-go/internal/service"
)

// maxContactForm bounds the contact form body.
const maxContactForm = 64 << 10

// ContactHandler serves the HTML contact form.
type ContactHandler struct {
	contact  *service.ContactService
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contact *service.ContactService, renderer *render.Renderer, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		contact:  contact,
		renderer: renderer,
		logger:   logger,
	}
}

// ContactFormData is the view model of the contact page.
type ContactFormData struct {
	Form   model.ContactMessage
	Errors map[string]string
}

// Form handles GET /contact-us.
func (h *ContactHandler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, ContactFormData{})
}

// Submit handles POST /contact-us.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxContactForm)
	if err := r.ParseForm(); err != nil {
		flashAndRedirect(w, r, h.renderer, RouteContact, "Invalid form data", FlashError)
		return
	}

	msg := model.ContactMessage{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Subject: r.PostFormValue("subject"),
		Message: r.PostFormValue("message"),
	}

	sender := h.contact.DescribeSender(middleware.ClientIP(r), r.UserAgent())
	if _, err := h.contact.Send(r.Context(), msg, sender); err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			h.render(w, r, http.StatusUnprocessableEntity, ContactFormData{Form: msg, Errors: ve.Fields})
			return
		}
		h.logger.Error("failed to send contact form", "error", err)
		flashAndRedirect(w, r, h.renderer, RouteContact, "Sorry, your message could not be sent. Please try again later.", FlashError)
		return
	}

	flashAndRedirect(w, r, h.renderer, RouteContact, "Thank you! Your message has been sent.", FlashSuccess)
}

func (h *ContactHandler) render(w http.ResponseWriter, r *http.Request, status int, data ContactFormData) {
	renderPage(w, r, h.renderer, h.logger, status, TemplateContact, render.TemplateData{
		Title:       "Contact us",
		Description: "Get in touch with the International Dance Nigeria team.",
		Data:        data,
	})
}
