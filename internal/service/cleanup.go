// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/dwc-go/internal/logging"
)

// Reasons attached to cleanup tasks.
const (
	ReasonCoverReplaced  = "cover-replaced"
	ReasonGalleryRemoved = "gallery-removed"
	ReasonEventDeleted   = "event-deleted"
	ReasonRollback       = "rollback"
)

const (
	defaultCleanupTimeout     = 20 * time.Second
	defaultCleanupConcurrency = 4
)

// CleanupTask is one hosted asset to delete after (or before) a record
// mutation.
type CleanupTask struct {
	AssetID string
	Reason  string
}

// DeletionWarning reports a cleanup task that failed. The owning record
// operation still succeeds; the asset is left orphaned at the provider.
type DeletionWarning struct {
	AssetID string `json:"assetId"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// AssetDeleter removes a hosted asset by id.
type AssetDeleter interface {
	Delete(ctx context.Context, assetID string) error
}

// Cleaner executes cleanup tasks concurrently, each under its own timeout.
type Cleaner struct {
	deleter     AssetDeleter
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     Metrics
}

// NewCleaner creates a Cleaner. timeout <= 0 uses a 20s default.
func NewCleaner(deleter AssetDeleter, timeout time.Duration, logger *slog.Logger, metrics Metrics) *Cleaner {
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Cleaner{
		deleter:     deleter,
		timeout:     timeout,
		concurrency: defaultCleanupConcurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run deletes every task's asset and returns one warning per failure, in
// task order. Tasks with an empty or repeated asset id are skipped. Run
// detaches from ctx cancellation so an abandoned request still cleans up.
func (c *Cleaner) Run(ctx context.Context, tasks []CleanupTask) []DeletionWarning {
	tasks = dedupeTasks(tasks)
	if len(tasks) == 0 {
		return nil
	}

	base := context.WithoutCancel(ctx)
	failures := make([]*DeletionWarning, len(tasks))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(base, c.timeout)
			defer cancel()

			if err := c.deleter.Delete(taskCtx, task.AssetID); err != nil {
				c.metrics.AssetDeleted(task.Reason, false)
				c.logger.Warn("asset cleanup failed",
					"asset_id", task.AssetID,
					"reason", task.Reason,
					"error", err,
					"category", logging.CategoryCleanup,
				)
				failures[i] = &DeletionWarning{AssetID: task.AssetID, Reason: task.Reason, Message: err.Error()}
				return nil
			}
			c.metrics.AssetDeleted(task.Reason, true)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []DeletionWarning
	for _, w := range failures {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

func dedupeTasks(tasks []CleanupTask) []CleanupTask {
	seen := make(map[string]bool, len(tasks))
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.AssetID == "" || seen[t.AssetID] {
			continue
		}
		seen[t.AssetID] = true
		out = append(out, t)
	}
	return out
}
