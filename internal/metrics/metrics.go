// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exposes Prometheus collectors for HTTP traffic, event
// mutations, media operations, contact mail, the read cache and log records.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dwc"

// Metrics holds every collector. Each instance owns its registry so several
// can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	eventMutations *prometheus.CounterVec
	mediaUploads   *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	assetDeletions *prometheus.CounterVec
	contactEmails  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	logRecords     *prometheus.CounterVec
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "mutations_total",
			Help:      "Event create, update and delete operations by result.",
		}, []string{"op", "result"}),
		mediaUploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Image uploads to the media host by result.",
		}, []string{"result"}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "upload_duration_seconds",
			Help:      "Latency of single image uploads.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		assetDeletions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "asset_deletions_total",
			Help:      "Hosted asset deletions by cleanup reason and result.",
		}, []string{"reason", "result"}),
		contactEmails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contact",
			Name:      "emails_total",
			Help:      "Contact form emails by delivery result.",
		}, []string{"result"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Event read-cache lookups by key kind and result.",
		}, []string{"kind", "result"}),
		logRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "records_total",
			Help:      "Warning and error log records by level and category.",
		}, []string{"level", "category"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// EventMutation records a create, update or delete.
func (m *Metrics) EventMutation(op string, ok bool) {
	m.eventMutations.WithLabelValues(op, result(ok)).Inc()
}

// MediaUpload records one upload attempt.
func (m *Metrics) MediaUpload(ok bool, d time.Duration) {
	m.mediaUploads.WithLabelValues(result(ok)).Inc()
	if ok {
		m.uploadDuration.Observe(d.Seconds())
	}
}

// AssetDeleted records one cleanup deletion.
func (m *Metrics) AssetDeleted(reason string, ok bool) {
	m.assetDeletions.WithLabelValues(reason, result(ok)).Inc()
}

// ContactSent records one contact email delivery.
func (m *Metrics) ContactSent(ok bool) {
	m.contactEmails.WithLabelValues(result(ok)).Inc()
}

// CacheLookup records an event cache lookup.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, r).Inc()
}

// Inc counts a warning or error log record.
func (m *Metrics) Inc(level, category string) {
	m.logRecords.WithLabelValues(level, category).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
