// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy is bluemonday's UGC policy extended with the class names and
// video embeds produced by the console's rich-text editor.
var contentPolicy = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").
		Matching(regexp.MustCompile(`^(ql-[a-z0-9-]+)( ql-[a-z0-9-]+)*$`)).
		OnElements("p", "span", "div", "li", "ol", "ul", "pre", "blockquote", "h1", "h2", "h3", "iframe")
	p.AllowAttrs("src").
		Matching(regexp.MustCompile(`^https://(www\.youtube\.com/embed/|www\.youtube-nocookie\.com/embed/|player\.vimeo\.com/video/)[A-Za-z0-9_?=&./-]+$`)).
		OnElements("iframe")
	p.AllowAttrs("allowfullscreen", "frameborder").OnElements("iframe")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// SanitizeContent strips unsafe markup from rich-text bodies.
func SanitizeContent(html string) string {
	return strings.TrimSpace(contentPolicy.Sanitize(html))
}
