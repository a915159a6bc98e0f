// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version provides build-time version information.
package version

import (
	"log/slog"
	"strings"
)

// Info contains build-time version information injected via ldflags.
type Info struct {
	Version   string `json:"version"`             // Semantic version from git tags (e.g., "v1.2.3")
	GitCommit string `json:"gitCommit,omitempty"` // Short git commit hash (e.g., "abc1234")
	BuildTime string `json:"buildTime,omitempty"` // Build timestamp in RFC3339 format
}

// New returns an Info, substituting "dev" for an empty version.
func New(v, commit, built string) Info {
	if strings.TrimSpace(v) == "" {
		v = "dev"
	}
	return Info{Version: v, GitCommit: commit, BuildTime: built}
}

// String formats the info as "v1.2.3 (abc1234)".
func (i Info) String() string {
	if i.GitCommit == "" {
		return i.Version
	}
	return i.Version + " (" + i.GitCommit + ")"
}

// LogValue implements slog.LogValuer.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Version),
		slog.String("commit", i.GitCommit),
		slog.String("built", i.BuildTime),
	)
}
