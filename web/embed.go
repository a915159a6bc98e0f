// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package web embeds the HTML templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates
var Templates embed.FS

//go:embed all:static/dist
var static embed.FS

// Static returns the static assets rooted at static/dist, so that
// "css/site.css" is served as /static/css/site.css.
func Static() (fs.FS, error) {
	return fs.Sub(static, "static/dist")
}

// TemplatesFS returns the templates rooted at the templates directory.
func TemplatesFS() (fs.FS, error) {
	return fs.Sub(Templates, "templates")
}
