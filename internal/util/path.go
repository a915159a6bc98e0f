// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxAssetNameBase bounds the readable part of generated asset names.
const maxAssetNameBase = 60

// SanitizeFilename extracts only the base filename, removing any directory
// components from both slash and backslash separated client paths.
func SanitizeFilename(filename string) (string, error) {
	safe := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if safe == "." || safe == ".." || safe == "" || safe == "/" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	return safe, nil
}

// AssetName derives a provider public id from an upload filename: the
// transliterated, slugified stem plus a short random suffix so repeated
// uploads of the same file never collide.
func AssetName(filename string) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]

	safe, err := SanitizeFilename(filename)
	if err != nil {
		return "image-" + suffix
	}
	stem := TransliterateSlug(strings.TrimSuffix(safe, filepath.Ext(safe)))
	if stem == "" {
		stem = "image"
	}
	if len(stem) > maxAssetNameBase {
		stem = strings.TrimRight(stem[:maxAssetNameBase], "-")
	}
	return stem + "-" + suffix
}
