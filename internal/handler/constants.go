// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler serves the HTML pages: the public event list and detail
// pages, the management console and the contact form, plus crawler files
// and health checks.
package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"
	// RouteEventList is the public event list.
	RouteEventList = "/event"
	// RouteEventManage is the management console.
	RouteEventManage = "/event/manage"
	// RouteEventDetail is the public event page.
	RouteEventDetail = "/event/{slug}"
	// RouteContact is the HTML contact form.
	RouteContact = "/contact-us"

	// RouteRobots is the crawler policy.
	RouteRobots = "/robots.txt"
	// RouteSitemap lists the public pages.
	RouteSitemap = "/sitemap.xml"

	// RouteHealth is the health check.
	RouteHealth = "/health"
	// RouteHealthLive is the liveness probe.
	RouteHealthLive = "/health/live"
	// RouteHealthReady is the readiness probe.
	RouteHealthReady = "/health/ready"
)

// Template names.
const (
	TemplateEventList   = "event/list"
	TemplateEventDetail = "event/detail"
	TemplateEventManage = "event/manage"
	TemplateContact     = "site/contact"
	TemplateError       = "site/error"
)

// Flash message types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)
