// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/olegiv/dwc-go/internal/auth"
	"github.com/olegiv/dwc-go/internal/logging"
)

// ManageKeyParam is the query parameter carrying the management key.
const ManageKeyParam = "key"

// ManageKeyHeader is accepted as an alternative to the query parameter.
const ManageKeyHeader = "X-Manage-Key"

// KeyVerifier checks management keys against the configured secret. With
// neither a plain key nor a hash configured every key is rejected.
type KeyVerifier struct {
	plain []byte
	hash  []byte
}

// NewKeyVerifier creates a verifier. hash, when set, is an Argon2id or
// bcrypt hash and takes precedence over plain.
func NewKeyVerifier(plain, hash string) *KeyVerifier {
	v := &KeyVerifier{}
	if hash = strings.TrimSpace(hash); hash != "" {
		v.hash = []byte(hash)
	} else if plain != "" {
		v.plain = []byte(plain)
	}
	return v
}

// Configured reports whether any secret is set.
func (v *KeyVerifier) Configured() bool {
	return len(v.hash) > 0 || len(v.plain) > 0
}

// Verify reports whether key matches the secret.
func (v *KeyVerifier) Verify(key string) bool {
	if key == "" {
		return false
	}
	if len(v.hash) > 0 {
		ok, err := auth.CheckKey(key, string(v.hash))
		if err != nil {
			slog.Error("management key hash unusable", "error", err, "category", logging.CategorySystem)
			return false
		}
		return ok
	}
	if len(v.plain) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(v.plain, []byte(key)) == 1
}

// RequestKey extracts the management key from the query or header.
func RequestKey(r *http.Request) string {
	if k := r.URL.Query().Get(ManageKeyParam); k != "" {
		return k
	}
	return r.Header.Get(ManageKeyHeader)
}

// ManageAuth gates management routes.
type ManageAuth struct {
	verifier *KeyVerifier
	guard    *KeyGuard
}

// NewManageAuth creates the gate. guard may be nil to disable lockouts.
func NewManageAuth(v *KeyVerifier, guard *KeyGuard) *ManageAuth {
	return &ManageAuth{verifier: v, guard: guard}
}

// check returns the status to reject with, or 0 when the key is valid.
func (a *ManageAuth) check(r *http.Request) (int, string) {
	ip := ClientIP(r)
	if a.guard != nil {
		if locked, remaining := a.guard.IsLocked(ip); locked {
			return http.StatusTooManyRequests, strconv.Itoa(int(remaining.Seconds()) + 1)
		}
	}

	if a.verifier.Verify(RequestKey(r)) {
		if a.guard != nil {
			a.guard.RecordSuccess(ip)
		}
		return 0, ""
	}

	if a.guard != nil {
		a.guard.RecordFailure(ip)
	}
	slog.Warn("management key rejected", "ip", ip, "method", r.Method, "path", r.URL.Path, "category", logging.CategoryHTTP)
	return http.StatusUnauthorized, ""
}

// API rejects requests without a valid key with a 401 JSON error before
// the handler reads the body.
func (a *ManageAuth) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch status, retry := a.check(r); status {
		case 0:
			next.ServeHTTP(w, r)
		case http.StatusTooManyRequests:
			w.Header().Set("Retry-After", retry)
			WriteAPIError(w, status, "rate_limited", "Too many invalid keys. Try again later.", nil)
		default:
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing management key", nil)
		}
	})
}

// Console redirects requests without a valid key to the home page.
func (a *ManageAuth) Console(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, _ := a.check(r); status != 0 {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorized reports whether r carries a valid key. Requests without any
// key are not counted as failures.
func (a *ManageAuth) Authorized(r *http.Request) bool {
	if RequestKey(r) == "" {
		return false
	}
	status, _ := a.check(r)
	return status == 0
}
