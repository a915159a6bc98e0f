// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/dwc-go/internal/auth"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

// knownWeakSecrets contains example secrets that must never reach production.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SessionSecret string `env:"DWC_SESSION_SECRET,required"`
	ServerHost    string `env:"DWC_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"DWC_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"DWC_ENV" envDefault:"development"`
	LogLevel      string `env:"DWC_LOG_LEVEL" envDefault:"info"`

	// Public site identity for canonical URLs and social tags. An empty
	// SiteURL is derived from each request.
	SiteURL  string `env:"DWC_SITE_URL"`
	SiteName string `env:"DWC_SITE_NAME" envDefault:"International Dance Nigeria"`

	// Document store
	StoreDriver  string        `env:"DWC_STORE_DRIVER" envDefault:"mongo"` // mongo or sqlite
	MongoURI     string        `env:"MONGODB_URI"`
	MongoDB      string        `env:"DWC_MONGODB_DATABASE" envDefault:"dwc"`
	SQLitePath   string        `env:"DWC_SQLITE_PATH" envDefault:"./data/dwc.db"`
	DBTimeout    time.Duration `env:"DWC_DB_TIMEOUT" envDefault:"10s"`
	RequestLimit time.Duration `env:"DWC_REQUEST_TIMEOUT" envDefault:"120s"`

	// Maximum size of a create or update request body
	MaxUploadBytes int64 `env:"DWC_MAX_UPLOAD_BYTES" envDefault:"52428800"`

	// Management key. ManageKeyHash is an Argon2id or bcrypt hash and takes
	// precedence. Generate one with: dwc -hash-key
	ManageKey     string `env:"MANAGE_KEY"`
	ManageKeyHash string `env:"DWC_MANAGE_KEY_HASH"`

	// Cloudinary
	CloudinaryCloudName string        `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string        `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string        `env:"CLOUDINARY_API_SECRET"`
	MediaFolder         string        `env:"DWC_MEDIA_FOLDER" envDefault:"events"`
	MediaTimeout        time.Duration `env:"DWC_MEDIA_TIMEOUT" envDefault:"60s"`
	MaxImageDimension   int           `env:"DWC_MAX_IMAGE_DIMENSION" envDefault:"2560"`

	// Resend
	ResendAPIKey string        `env:"RESEND_API_KEY"`
	ContactFrom  string        `env:"DWC_CONTACT_FROM" envDefault:"International Dance Nigeria <contact@internationaldance.ng>"`
	ContactTo    string        `env:"DWC_CONTACT_TO" envDefault:"info@internationaldance.ng"`
	MailTimeout  time.Duration `env:"DWC_MAIL_TIMEOUT" envDefault:"15s"`

	// Cache configuration
	RedisURL    string `env:"DWC_REDIS_URL"`                        // Optional Redis URL for shared caching
	CachePrefix string `env:"DWC_CACHE_PREFIX" envDefault:"dwc:"`   // Redis key prefix
	CacheTTL    int    `env:"DWC_CACHE_TTL" envDefault:"300"`       // Read cache TTL in seconds
	CacheSize   int    `env:"DWC_CACHE_MAX_SIZE" envDefault:"2000"` // Max memory cache entries

	// GeoIP configuration
	GeoIPDBPath         string `env:"DWC_GEOIP_DB_PATH"`                                // Path to GeoLite2-Country.mmdb file
	GeoIPReloadSchedule string `env:"DWC_GEOIP_RELOAD_SCHEDULE" envDefault:"0 4 * * *"` // Cron schedule for database reloads

	// Store health probe schedule (cron syntax, empty disables)
	StorePingSchedule string `env:"DWC_STORE_PING_SCHEDULE" envDefault:"@every 5m"`

	// Rate limiting (requests per second per client IP)
	WriteRateLimit   float64 `env:"DWC_WRITE_RATE_LIMIT" envDefault:"2"`
	WriteRateBurst   int     `env:"DWC_WRITE_RATE_BURST" envDefault:"10"`
	ContactRateLimit float64 `env:"DWC_CONTACT_RATE_LIMIT" envDefault:"0.2"`
	ContactRateBurst int     `env:"DWC_CONTACT_RATE_BURST" envDefault:"3"`

	// Honor X-Forwarded-For and X-Real-IP only behind a reverse proxy that
	// overwrites them. Client IPs key the rate limiters and key lockout.
	TrustProxy bool `env:"DWC_TRUST_PROXY" envDefault:"false"`

	MetricsEnabled bool `env:"DWC_METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if a GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// ManageKeyConfigured reports whether any management credential is set.
func (c Config) ManageKeyConfigured() bool {
	return c.ManageKey != "" || c.ManageKeyHash != ""
}

// MediaConfigured reports whether all Cloudinary credentials are present.
func (c Config) MediaConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// MailConfigured reports whether the email service key is present.
func (c Config) MailConfigured() bool {
	return c.ResendAPIKey != ""
}

// CacheTTLDuration returns CacheTTL as a time.Duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("DWC_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("DWC_SESSION_SECRET is a known default value and must not be used")
		}
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			slog.Warn("MONGODB_URI is not set; event storage will be unavailable")
		}
	case StoreSQLite:
	default:
		return nil, fmt.Errorf("DWC_STORE_DRIVER must be %q or %q, got %q", StoreMongo, StoreSQLite, cfg.StoreDriver)
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("DWC_MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	if cfg.DBTimeout <= 0 || cfg.MediaTimeout <= 0 || cfg.MailTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}

	cfg.ManageKeyHash = strings.TrimSpace(cfg.ManageKeyHash)
	if cfg.ManageKeyHash != "" && !auth.IsHash(cfg.ManageKeyHash) {
		return nil, fmt.Errorf("DWC_MANAGE_KEY_HASH must be an argon2id or bcrypt hash")
	}

	if !cfg.ManageKeyConfigured() {
		slog.Warn("MANAGE_KEY is not set; all management requests will be rejected")
	}

	return cfg, nil
}
