// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/service"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// errBadBody marks request bodies that could not be decoded at all.
var errBadBody = errors.New("malformed request body")

// eventRequest is the JSON body of create and update requests. Pointer
// fields distinguish "absent" from "empty" on update.
type eventRequest struct {
	Title             *string   `json:"title"`
	Excerpt           *string   `json:"excerpt"`
	ContentHTML       *string   `json:"contentHtml"`
	CoverImage        *string   `json:"coverImage"`
	CoverImageAssetID *string   `json:"coverImageAssetId"`
	Images            *[]string `json:"images"`
	ImagesAssetIDs    []string  `json:"imagesAssetIds"`
	KeepAssetIDs      *[]string `json:"keepAssetIds"`
	Videos            *[]string `json:"videos"`
	Tags              *[]string `json:"tags"`
	PublishedAt       *string   `json:"publishedAt"`
}

// eventForm is what either decoder extracted from the request.
type eventForm struct {
	eventRequest
	coverFile    *service.FileUpload
	galleryFiles []service.FileUpload
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// decodeEventForm reads a JSON or multipart body.
func (h *Handler) decodeEventForm(w http.ResponseWriter, r *http.Request) (*eventForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if isMultipart(r) {
		return decodeMultipart(r)
	}

	var req eventRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	return &eventForm{eventRequest: req}, nil
}

// decodeMultipart reads the form fields and files of a multipart body.
// List fields accept either repeated values or one JSON array value.
func decodeMultipart(r *http.Request) (*eventForm, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	values := r.MultipartForm.Value
	f := &eventForm{}
	f.Title = formString(values, "title")
	f.Excerpt = formString(values, "excerpt")
	f.ContentHTML = formString(values, "contentHtml")
	f.CoverImage = formString(values, "coverImage")
	f.CoverImageAssetID = formString(values, "coverImageAssetId")
	f.PublishedAt = formString(values, "publishedAt")
	f.Images = formList(values, "images")
	f.KeepAssetIDs = formList(values, "keepAssetIds")
	f.Videos = formList(values, "videos")
	f.Tags = formList(values, "tags")
	if ids := formList(values, "imagesAssetIds"); ids != nil {
		f.ImagesAssetIDs = *ids
	}

	files := r.MultipartForm.File
	if headers := files["coverFile"]; len(headers) > 0 {
		fu, err := readFile(headers[0])
		if err != nil {
			return nil, err
		}
		f.coverFile = &fu
	}
	for _, fh := range files["imageFiles"] {
		fu, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		f.galleryFiles = append(f.galleryFiles, fu)
	}
	return f, nil
}

func formString(values map[string][]string, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}

func formList(values map[string][]string, key string) *[]string {
	v, ok := values[key]
	if !ok {
		return nil
	}
	if len(v) == 1 && strings.HasPrefix(strings.TrimSpace(v[0]), "[") {
		var list []string
		if err := json.Unmarshal([]byte(v[0]), &list); err == nil {
			return &list
		}
	}
	var list []string
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if list == nil {
		list = []string{}
	}
	return &list
}

func readFile(fh *multipart.FileHeader) (service.FileUpload, error) {
	file, err := fh.Open()
	if err != nil {
		return service.FileUpload{}, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.FileUpload{}, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return service.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// publishedLayouts are the accepted publishedAt formats: RFC 3339 and the
// values produced by date and datetime-local inputs.
var publishedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func parsePublishedAt(ve *service.ValidationError, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	ve.Add("publishedAt", "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefList(s *[]string) []string {
	if s == nil {
		return nil
	}
	return *s
}

// createCommand converts a decoded form into a create command.
func (f *eventForm) createCommand() (service.CreateEventCommand, error) {
	ve := &service.ValidationError{}
	cmd := service.CreateEventCommand{
		Title:             deref(f.Title),
		Excerpt:           deref(f.Excerpt),
		ContentHTML:       deref(f.ContentHTML),
		CoverImage:        deref(f.CoverImage),
		CoverImageAssetID: deref(f.CoverImageAssetID),
		CoverFile:         f.coverFile,
		Gallery:           model.PairGallery(derefList(f.Images), f.ImagesAssetIDs),
		GalleryFiles:      f.galleryFiles,
		Videos:            derefList(f.Videos),
		Tags:              derefList(f.Tags),
		PublishedAt:       parsePublishedAt(ve, f.PublishedAt),
	}
	return cmd, ve.ErrOrNil()
}

// updateCommand converts a decoded form into an update command for id. A
// keep-list selects keep mode and the images are appended as new entries;
// images without a keep-list replace the gallery.
func (f *eventForm) updateCommand(id string) (service.UpdateEventCommand, error) {
	ve := &service.ValidationError{}
	cmd := service.UpdateEventCommand{
		ID:                id,
		Title:             f.Title,
		Excerpt:           f.Excerpt,
		ContentHTML:       f.ContentHTML,
		CoverImage:        f.CoverImage,
		CoverImageAssetID: f.CoverImageAssetID,
		CoverFile:         f.coverFile,
		GalleryFiles:      f.galleryFiles,
		Videos:            f.Videos,
		Tags:              f.Tags,
		PublishedAt:       parsePublishedAt(ve, f.PublishedAt),
	}
	if f.Images != nil {
		cmd.Gallery = model.PairGallery(*f.Images, f.ImagesAssetIDs)
	}
	if f.KeepAssetIDs != nil {
		cmd.KeepProvided = true
		cmd.Keep = *f.KeepAssetIDs
	} else if f.Images != nil {
		cmd.GalleryProvided = true
	}
	return cmd, ve.ErrOrNil()
}
