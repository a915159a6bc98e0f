// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

// createTestImage creates a simple test image with the given dimensions.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestPrepare_Downscales(t *testing.T) {
	p := NewProcessor(100)

	res, err := p.Prepare(encodeJPEG(t, createTestImage(400, 200)))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !res.Resized {
		t.Error("Resized = false, want true")
	}
	if res.Width != 100 || res.Height != 50 {
		t.Errorf("dimensions = %dx%d, want 100x50", res.Width, res.Height)
	}
	if res.ContentType != MimeJPEG {
		t.Errorf("ContentType = %q, want %q", res.ContentType, MimeJPEG)
	}
}

func TestPrepare_SmallImageKeepsSize(t *testing.T) {
	p := NewProcessor(0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(40, 30)); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	res, err := p.Prepare(buf.Bytes())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Resized {
		t.Error("Resized = true, want false")
	}
	if res.Width != 40 || res.Height != 30 {
		t.Errorf("dimensions = %dx%d, want 40x30", res.Width, res.Height)
	}
	if res.ContentType != MimePNG {
		t.Errorf("ContentType = %q, want %q", res.ContentType, MimePNG)
	}
}

func TestPrepare_GIFPassthrough(t *testing.T) {
	p := NewProcessor(10)

	var buf bytes.Buffer
	if err := gif.Encode(&buf, createTestImage(20, 20), nil); err != nil {
		t.Fatalf("gif.Encode: %v", err)
	}
	data := buf.Bytes()

	res, err := p.Prepare(data)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("GIF data was modified")
	}
	if res.ContentType != MimeGIF {
		t.Errorf("ContentType = %q, want %q", res.ContentType, MimeGIF)
	}
}

func TestPrepare_Unsupported(t *testing.T) {
	p := NewProcessor(0)

	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("hello world")},
		{"tiff", []byte("II*\x00\x08\x00\x00\x00")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Prepare(tt.data); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Prepare error = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestApplyOrientation(t *testing.T) {
	img := createTestImage(30, 10)

	tests := []struct {
		orientation int
		wantW       int
		wantH       int
	}{
		{1, 30, 10},
		{3, 30, 10},
		{6, 10, 30},
		{8, 10, 30},
		{99, 30, 10},
	}
	for _, tt := range tests {
		b := applyOrientation(img, tt.orientation).Bounds()
		if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
			t.Errorf("orientation %d: %dx%d, want %dx%d", tt.orientation, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{MimeJPEG, true},
		{MimePNG, true},
		{"IMAGE/GIF", true},
		{MimeWebP, true},
		{"application/pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			if got := IsImage(tt.mimeType); got != tt.want {
				t.Errorf("IsImage(%q) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}
