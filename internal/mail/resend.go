// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mail sends transactional email through Resend.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const (
	// DefaultBaseURL is the Resend API root.
	DefaultBaseURL = "https://api.resend.com/"
	// DefaultTimeout bounds one send.
	DefaultTimeout = 15 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("email service is not configured")

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// SendError is a failed send. Status is the provider HTTP status, 0 when
// no response arrived.
type SendError struct {
	Status  int
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Status == 0 {
		return "resend send failed: " + e.Message
	}
	return fmt.Sprintf("resend send failed: %d %s", e.Status, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Config holds client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client sends email via the Resend SDK.
type Client struct {
	apiKey string
	rc     *resend.Client
}

// NewClient creates a client. A missing API key is reported by Send.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := resend.NewCustomClient(&http.Client{
		Timeout:   cfg.Timeout,
		Transport: &statusTransport{next: http.DefaultTransport},
	}, cfg.APIKey)
	// Request paths are resolved relative to the base, so it must end in '/'.
	if u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/"); err == nil {
		rc.BaseURL = u
	}
	return &Client{apiKey: cfg.APIKey, rc: rc}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Send delivers msg and returns the provider message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)
	sent, err := c.rc.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return "", &SendError{Status: status, Message: err.Error(), Err: err}
	}
	return sent.Id, nil
}

type statusKey struct{}

// statusTransport stores the response status in the *int carried by the
// request context. The SDK reports provider errors without the status.
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err == nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}
