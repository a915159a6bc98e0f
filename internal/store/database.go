// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteConfig holds settings of the development SQLite backend.
type SQLiteConfig struct {
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// DefaultSQLiteConfig returns settings for a single-node WAL database.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		MaxOpenConns: 8,
		BusyTimeout:  5 * time.Second,
	}
}

// NewDB opens the SQLite file at path with DefaultSQLiteConfig.
func NewDB(path string) (*sql.DB, error) {
	return OpenSQLite(path, DefaultSQLiteConfig())
}

// OpenSQLite opens the SQLite file at path. Pragmas are part of the DSN so
// every pooled connection gets them, and write transactions take the lock
// up front instead of failing on upgrade.
func OpenSQLite(path string, cfg SQLiteConfig) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("pinging database: %w", err)}
	}
	return db, nil
}

// Migrate applies pending migrations and logs each one applied.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		slog.Debug("applied migration", "version", r.Source.Version, "duration", r.Duration, "category", "store")
	}
	return nil
}
