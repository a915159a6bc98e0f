// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/olegiv/dwc-go/internal/logging"
	"github.com/olegiv/dwc-go/internal/mail"
	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/service"
)

// maxContactBody bounds the contact request body.
const maxContactBody = 64 << 10

// ContactResponse wraps the provider message id.
type ContactResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// SendContact handles POST /email/contact.
func (h *Handler) SendContact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxContactBody)

	var msg model.ContactMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	sender := h.contact.DescribeSender(middleware.ClientIP(r), r.UserAgent())
	id, err := h.contact.Send(r.Context(), msg, sender)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			WriteValidationError(w, ve.Fields)
			return
		}
		if errors.Is(err, mail.ErrNotConfigured) {
			h.logger.Error("contact email not configured", "category", logging.CategoryMail)
		}
		WriteError(w, http.StatusInternalServerError, "mail_failed", "Failed to send message", nil)
		return
	}

	var resp ContactResponse
	resp.Data.ID = id
	WriteJSON(w, http.StatusOK, resp)
}
