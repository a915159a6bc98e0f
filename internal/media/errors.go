// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package media

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies gateway failures.
type ErrorKind int

const (
	// KindConfig means credentials are missing; no request was made.
	KindConfig ErrorKind = iota
	// KindRemote means the provider answered with a non-success status.
	KindRemote
	// KindTransport means the request did not complete (network, timeout).
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRemote:
		return "remote"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ErrNotConfigured is wrapped by configuration errors.
var ErrNotConfigured = errors.New("cloudinary credentials are not configured")

// UploadError is returned by every gateway operation.
type UploadError struct {
	Op      string // "upload" or "delete"
	Kind    ErrorKind
	Status  int    // provider HTTP status, 0 when no response
	Message string // provider message or transport error text
	Err     error
}

func (e *UploadError) Error() string {
	switch e.Kind {
	case KindConfig:
		return fmt.Sprintf("cloudinary %s failed: %v", e.Op, ErrNotConfigured)
	case KindRemote:
		if e.Status == 0 {
			return fmt.Sprintf("cloudinary %s failed: %s", e.Op, e.Message)
		}
		return fmt.Sprintf("cloudinary %s failed: %d %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("cloudinary %s failed: %s", e.Op, e.Message)
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same request might succeed.
func (e *UploadError) Transient() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindRemote:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
	default:
		return false
	}
}

// IsConfigError reports whether err is a missing-credentials UploadError.
func IsConfigError(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue) && ue.Kind == KindConfig
}

// IsTransient reports whether err is an UploadError worth retrying.
func IsTransient(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue) && ue.Transient()
}
