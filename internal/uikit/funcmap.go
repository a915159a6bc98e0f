// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package uikit provides template helpers, pagination logic and small view
// model types shared by the HTML pages.
package uikit

import (
	"encoding/json"
	"html/template"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Date layouts used by the templates. DateTimeLocalLayout matches the value
// format of <input type="datetime-local">.
const (
	DateLayout          = "Jan 2, 2006"
	DateTimeLayout      = "Jan 2, 2006 3:04 PM"
	ISODateLayout       = "2006-01-02"
	DateTimeLocalLayout = "2006-01-02T15:04"
)

// TemplateFuncs returns a template.FuncMap with pure helper functions.
//
// Callers can merge project-specific functions on top:
//
//	funcs := uikit.TemplateFuncs()
//	funcs["myFunc"] = myProjectFunc
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Strings
		"lower":     strings.ToLower,
		"join":      strings.Join,
		"hasPrefix": strings.HasPrefix,
		"truncate":  Truncate,

		// HTML that was sanitized before it was stored
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s)
		},

		// Math
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"seq": func(start, end int) []int {
			var result []int
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			return result
		},

		// Time
		"formatDate": func(t time.Time) string {
			return t.Format(DateLayout)
		},
		"formatDateTime": func(t time.Time) string {
			return t.Format(DateTimeLayout)
		},
		"isoDate": func(t time.Time) string {
			return t.UTC().Format(ISODateLayout)
		},
		"rfc3339": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},

		// JSON for data attributes
		"toJSON": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "null"
			}
			return string(b)
		},

		// Media
		"videoEmbed": VideoEmbedURL,

		// Data structures
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			dict := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				dict[key] = values[i+1]
			}
			return dict
		},
	}
}

// Truncate shortens s to at most length runes, appending "..." when cut.
func Truncate(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:length]), " ") + "..."
}

// VideoEmbedURL converts a YouTube or Vimeo watch URL into its embeddable
// player URL. Other URLs yield "" and are shown as plain links.
func VideoEmbedURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.Trim(u.Path, "/")

	switch host {
	case "youtube.com", "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(id)
		}
		if rest, ok := strings.CutPrefix(path, "shorts/"); ok && rest != "" {
			return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(rest)
		}
		if strings.HasPrefix(path, "embed/") {
			return "https://www.youtube-nocookie.com/" + path
		}
	case "youtu.be":
		if path != "" {
			return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(path)
		}
	case "vimeo.com":
		if path != "" && !strings.Contains(path, "/") {
			return "https://player.vimeo.com/video/" + url.PathEscape(path)
		}
	}
	return ""
}
