// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package media uploads and deletes images on Cloudinary and signs
// direct-from-browser upload parameters.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	// DefaultBaseURL is the Cloudinary API prefix; the SDK appends the API
	// version and cloud name.
	DefaultBaseURL = "https://api.cloudinary.com"
	// DefaultTimeout bounds a single upload or delete call.
	DefaultTimeout = 60 * time.Second
	// DefaultSignatureFolder is used when a signature request names no folder.
	DefaultSignatureFolder = "events/uploads"

	resourceImage = "image"
)

// Config holds Cloudinary credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// Asset is an uploaded image.
type Asset struct {
	URL     string
	AssetID string
}

// UploadOptions names the destination of an upload.
type UploadOptions struct {
	Folder   string
	PublicID string // optional, provider generates one when empty
}

// Signature is the parameter set a browser needs for a signed upload.
type Signature struct {
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Folder    string `json:"folder"`
}

// Client wraps the Cloudinary SDK.
type Client struct {
	cfg     Config
	cld     *cloudinary.Cloudinary
	initErr error
}

// NewClient creates a client. Missing credentials are reported per call.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{cfg: cfg}
	if !c.Configured() {
		return c
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		c.initErr = err
		return c
	}
	cld.Upload.Config.API.UploadPrefix = cfg.BaseURL
	cld.Upload.Client.Timeout = cfg.Timeout
	cld.Upload.Client.Transport = &statusTransport{next: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}}
	c.cld = cld
	return c
}

// Configured reports whether all credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.CloudName != "" && c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

func (c *Client) ready(op string) error {
	if !c.Configured() {
		return &UploadError{Op: op, Kind: KindConfig, Err: ErrNotConfigured}
	}
	if c.initErr != nil {
		return &UploadError{Op: op, Kind: KindConfig, Message: c.initErr.Error(), Err: c.initErr}
	}
	return nil
}

// Upload sends data to the image upload endpoint and returns the hosted asset.
func (c *Client) Upload(ctx context.Context, data []byte, opts UploadOptions) (*Asset, error) {
	const op = "upload"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &UploadError{Op: op, Kind: KindRemote, Status: http.StatusBadRequest, Message: "empty file"}
	}

	var status int
	res, err := c.cld.Upload.Upload(withStatus(ctx, &status), bytes.NewReader(data), uploader.UploadParams{
		Folder:       opts.Folder,
		PublicID:     opts.PublicID,
		ResourceType: resourceImage,
	})
	if err != nil {
		return nil, callError(op, status, err)
	}
	if res.Error.Message != "" {
		return nil, remoteError(op, status, res.Error.Message)
	}

	link := res.SecureURL
	if link == "" {
		link = res.URL
	}
	if link == "" || res.PublicID == "" {
		return nil, &UploadError{Op: op, Kind: KindRemote, Status: http.StatusBadGateway,
			Message: "response missing secure_url or public_id"}
	}
	return &Asset{URL: link, AssetID: res.PublicID}, nil
}

// Delete destroys the asset. An asset the provider reports as "not found"
// counts as deleted.
func (c *Client) Delete(ctx context.Context, assetID string) error {
	const op = "delete"
	if err := c.ready(op); err != nil {
		return err
	}
	if assetID == "" {
		return nil
	}

	var status int
	res, err := c.cld.Upload.Destroy(withStatus(ctx, &status), uploader.DestroyParams{
		PublicID:     assetID,
		ResourceType: resourceImage,
	})
	if err != nil {
		return callError(op, status, err)
	}
	if res.Error.Message != "" {
		return remoteError(op, status, res.Error.Message)
	}
	switch res.Result {
	case "", "ok", "not found":
		return nil
	default:
		return &UploadError{Op: op, Kind: KindRemote, Status: status, Message: "result: " + res.Result}
	}
}

// Sign returns signed upload parameters for folder at time now.
func (c *Client) Sign(folder string, now time.Time) (*Signature, error) {
	const op = "sign"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if folder == "" {
		folder = DefaultSignatureFolder
	}
	ts := now.Unix()
	sig, err := api.SignParameters(url.Values{
		"folder":    {folder},
		"timestamp": {strconv.FormatInt(ts, 10)},
	}, c.cfg.APISecret)
	if err != nil {
		return nil, &UploadError{Op: op, Kind: KindConfig, Message: err.Error(), Err: err}
	}
	return &Signature{
		CloudName: c.cfg.CloudName,
		APIKey:    c.cfg.APIKey,
		Timestamp: ts,
		Signature: sig,
		Folder:    folder,
	}, nil
}

// callError classifies an SDK error by the HTTP status seen on the wire. No
// status means the request never completed.
func callError(op string, status int, err error) error {
	switch {
	case status == 0:
		return &UploadError{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	case status < 200 || status >= 300:
		return &UploadError{Op: op, Kind: KindRemote, Status: status, Message: http.StatusText(status), Err: err}
	default:
		return &UploadError{Op: op, Kind: KindRemote, Status: status, Message: "invalid response body", Err: err}
	}
}

func remoteError(op string, status int, msg string) error {
	if status >= 200 && status < 300 {
		// An error body on a success status is still a rejection.
		status = http.StatusBadRequest
	}
	return &UploadError{Op: op, Kind: KindRemote, Status: status, Message: msg}
}

type statusKey struct{}

func withStatus(ctx context.Context, status *int) context.Context {
	return context.WithValue(ctx, statusKey{}, status)
}

// statusTransport stores the response status in the *int carried by the
// request context. The SDK decodes error bodies without exposing it.
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

// String describes the client for logs without exposing secrets.
func (c *Client) String() string {
	return fmt.Sprintf("cloudinary(%s)", c.cfg.CloudName)
}
