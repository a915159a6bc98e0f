// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"sync"
	"time"
)

// KeyGuard locks out client IPs that repeatedly present wrong management
// keys. Lockouts double with each repeat, capped at 24 hours.
type KeyGuard struct {
	failedAttempts map[string]*keyAttempt
	attemptsMu     sync.RWMutex

	maxFailedAttempts int
	lockoutDuration   time.Duration
	attemptWindow     time.Duration
	now               func() time.Time

	stop chan struct{}
	once sync.Once
}

type keyAttempt struct {
	count       int
	firstFailed time.Time
	lockedUntil time.Time
	lockouts    int
}

// KeyGuardConfig holds lockout settings.
type KeyGuardConfig struct {
	// MaxFailedAttempts before lockout (default: 10)
	MaxFailedAttempts int
	// LockoutDuration is the base lockout, doubled per repeat (default: 15 minutes)
	LockoutDuration time.Duration
	// AttemptWindow is the window for counting failures (default: 15 minutes)
	AttemptWindow time.Duration
}

// DefaultKeyGuardConfig returns the production settings.
func DefaultKeyGuardConfig() KeyGuardConfig {
	return KeyGuardConfig{
		MaxFailedAttempts: 10,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
	}
}

// NewKeyGuard creates a guard and starts its cleanup goroutine. Call Close
// to stop it.
func NewKeyGuard(cfg KeyGuardConfig) *KeyGuard {
	def := DefaultKeyGuardConfig()
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = def.AttemptWindow
	}

	g := &KeyGuard{
		failedAttempts:    make(map[string]*keyAttempt),
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutDuration:   cfg.LockoutDuration,
		attemptWindow:     cfg.AttemptWindow,
		now:               time.Now,
		stop:              make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// IsLocked reports whether ip is locked out and for how long.
func (g *KeyGuard) IsLocked(ip string) (bool, time.Duration) {
	g.attemptsMu.RLock()
	attempt, exists := g.failedAttempts[ip]
	g.attemptsMu.RUnlock()

	if !exists {
		return false, 0
	}
	if now := g.now(); now.Before(attempt.lockedUntil) {
		return true, attempt.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts a wrong key from ip and reports whether ip is now
// locked out.
func (g *KeyGuard) RecordFailure(ip string) (bool, time.Duration) {
	g.attemptsMu.Lock()
	defer g.attemptsMu.Unlock()

	now := g.now()
	attempt, exists := g.failedAttempts[ip]
	if !exists {
		attempt = &keyAttempt{firstFailed: now}
		g.failedAttempts[ip] = attempt
	}

	if now.Sub(attempt.firstFailed) > g.attemptWindow {
		attempt.count = 0
		attempt.firstFailed = now
	}
	attempt.count++

	if attempt.count < g.maxFailedAttempts {
		return false, 0
	}

	lockDuration := g.lockoutDuration
	for i := 0; i < attempt.lockouts; i++ {
		lockDuration *= 2
		if lockDuration > 24*time.Hour {
			lockDuration = 24 * time.Hour
			break
		}
	}

	attempt.lockedUntil = now.Add(lockDuration)
	attempt.lockouts++
	attempt.count = 0

	slog.Warn("client locked out after invalid management keys",
		"ip", ip,
		"lockouts", attempt.lockouts,
		"duration", lockDuration,
	)
	return true, lockDuration
}

// RecordSuccess clears failure tracking for ip.
func (g *KeyGuard) RecordSuccess(ip string) {
	g.attemptsMu.Lock()
	defer g.attemptsMu.Unlock()
	delete(g.failedAttempts, ip)
}

// RemainingAttempts returns how many wrong keys ip may still send.
func (g *KeyGuard) RemainingAttempts(ip string) int {
	g.attemptsMu.RLock()
	attempt, exists := g.failedAttempts[ip]
	g.attemptsMu.RUnlock()

	if !exists || g.now().Sub(attempt.firstFailed) > g.attemptWindow {
		return g.maxFailedAttempts
	}
	return max(g.maxFailedAttempts-attempt.count, 0)
}

// Close stops the cleanup goroutine.
func (g *KeyGuard) Close() {
	g.once.Do(func() { close(g.stop) })
}

func (g *KeyGuard) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanupStaleEntries()
		case <-g.stop:
			return
		}
	}
}

func (g *KeyGuard) cleanupStaleEntries() {
	now := g.now()

	g.attemptsMu.Lock()
	defer g.attemptsMu.Unlock()
	for ip, attempt := range g.failedAttempts {
		if now.After(attempt.lockedUntil) && now.Sub(attempt.firstFailed) > g.attemptWindow {
			delete(g.failedAttempts, ip)
		}
	}
}
