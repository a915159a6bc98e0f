// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxSignatureBody bounds the optional {"folder": "..."} body.
const maxSignatureBody = 4 << 10

// MediaSignature handles POST /media/signature. The body is optional; a
// missing or unreadable one signs for the default upload folder.
func (h *Handler) MediaSignature(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Folder string `json:"folder"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, maxSignatureBody)).Decode(&body)

	folder := strings.Trim(strings.TrimSpace(body.Folder), "/")
	if strings.Contains(folder, "..") {
		WriteValidationError(w, map[string]string{"folder": "must not contain '..'"})
		return
	}

	sig, err := h.signer.Sign(folder, h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, sig)
}
