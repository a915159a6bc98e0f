// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import "time"

// Metrics receives service-level observations. internal/metrics provides
// the Prometheus implementation.
type Metrics interface {
	EventMutation(op string, ok bool)
	MediaUpload(ok bool, d time.Duration)
	AssetDeleted(reason string, ok bool)
	ContactSent(ok bool)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) EventMutation(string, bool) {}
func (NopMetrics) MediaUpload(bool, time.Duration) {}
func (NopMetrics) AssetDeleted(string, bool) {}
func (NopMetrics) ContactSent(bool) {}
