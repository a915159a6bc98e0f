// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"time"

	"github.com/olegiv/dwc-go/internal/model"
)

// FileUpload is a raw file that accompanied a create or update request.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreateEventCommand carries normalized create input from either the JSON
// or the multipart decoder.
type CreateEventCommand struct {
	Title             string
	Excerpt           string
	ContentHTML       string
	CoverImage        string
	CoverImageAssetID string
	CoverFile         *FileUpload

	// Gallery holds entries that already have a URL, in submission order.
	Gallery      []model.MediaRef
	GalleryFiles []FileUpload

	Videos      []string
	Tags        []string
	PublishedAt *time.Time
}

// UpdateEventCommand carries normalized update input. Nil pointers and
// unset flags leave the stored value unchanged.
type UpdateEventCommand struct {
	ID string

	Title             *string
	Excerpt           *string
	ContentHTML       *string
	CoverImage        *string
	CoverImageAssetID *string
	CoverFile         *FileUpload

	// KeepProvided selects keep-list mode: existing gallery entries whose
	// key is not in Keep are removed and Gallery entries are appended.
	KeepProvided bool
	Keep         []string

	// GalleryProvided without KeepProvided selects replace mode: Gallery
	// becomes the new gallery and existing entries absent from it are removed.
	GalleryProvided bool
	Gallery         []model.MediaRef

	GalleryFiles []FileUpload

	Videos      *[]string
	Tags        *[]string
	PublishedAt *time.Time
}
