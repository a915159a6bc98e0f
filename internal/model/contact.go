// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// ContactMessage is a contact form submission. It is never persisted.
type ContactMessage struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" validate:"required,max=300"`
	Message string `json:"message" validate:"required,max=10000"`
}

// SenderInfo is optional request metadata attached to a contact email.
type SenderInfo struct {
	IP        string
	UserAgent string
	Browser   string
	OS        string
	Device    string
	Country   string
}
