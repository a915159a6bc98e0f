// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package main is the entry point for the events site server.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/dwc-go/internal/auth"
	"github.com/olegiv/dwc-go/internal/cache"
	"github.com/olegiv/dwc-go/internal/config"
	"github.com/olegiv/dwc-go/internal/geoip"
	"github.com/olegiv/dwc-go/internal/handler"
	"github.com/olegiv/dwc-go/internal/handler/api"
	"github.com/olegiv/dwc-go/internal/imaging"
	"github.com/olegiv/dwc-go/internal/logging"
	"github.com/olegiv/dwc-go/internal/mail"
	"github.com/olegiv/dwc-go/internal/media"
	"github.com/olegiv/dwc-go/internal/metrics"
	"github.com/olegiv/dwc-go/internal/middleware"
	"github.com/olegiv/dwc-go/internal/render"
	"github.com/olegiv/dwc-go/internal/scheduler"
	"github.com/olegiv/dwc-go/internal/seo"
	"github.com/olegiv/dwc-go/internal/service"
	"github.com/olegiv/dwc-go/internal/session"
	"github.com/olegiv/dwc-go/internal/store"
	"github.com/olegiv/dwc-go/internal/version"
	"github.com/olegiv/dwc-go/web"
)

// Build information, injected via ldflags.
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	hashKey := flag.Bool("hash-key", false, "Read a management key from stdin and print its hash for DWC_MANAGE_KEY_HASH")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "dwc - dance competition events site\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_SESSION_SECRET      Session and CSRF key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_SERVER_PORT         Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_ENV                 Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_STORE_DRIVER        Event store: mongo|sqlite (default: mongo)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  MONGODB_URI             MongoDB connection string\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_SQLITE_PATH         SQLite database path (default: ./data/dwc.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  MANAGE_KEY              Management key for writes and the console\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLOUDINARY_CLOUD_NAME   Cloudinary cloud (also CLOUDINARY_API_KEY, CLOUDINARY_API_SECRET)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RESEND_API_KEY          Resend API key for the contact form\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_REDIS_URL           Redis URL for shared caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  DWC_TRUST_PROXY         Take client IPs from X-Forwarded-For (default: false)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.New(appVersion, appGitCommit, appBuildTime)
	if *showVersion {
		_, _ = fmt.Printf("dwc %s (commit: %s, built: %s)\n", info.Version, info.GitCommit, info.BuildTime)
		os.Exit(0)
	}

	if *hashKey {
		if err := printKeyHash(os.Stdin); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	isDev := cfg.IsDevelopment()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel), isDev)
	if m != nil {
		logger = slog.New(logging.NewCountingHandler(logger.Handler(), m))
	}
	slog.SetDefault(logger)
	slog.Info("starting", "version", info)

	ctx := context.Background()

	// Event store
	eventStore, db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionManager := session.New(db, isDev)
	slog.Info("session manager initialized", "persistent", db != nil)

	// Read cache
	cacher, backend := cache.New(ctx, cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTLDuration(),
		MaxEntries: cfg.CacheSize,
	}, logger)
	defer func() { _ = cacher.Close() }()
	eventCache := cache.NewEventCache(cacher, cfg.CacheTTLDuration())
	if m != nil {
		eventCache.SetObserver(m.CacheLookup)
	}
	slog.Info("cache initialized", "backend", backend, "category", logging.CategoryCache)

	// Outbound services
	mediaClient := media.NewClient(media.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Timeout:   cfg.MediaTimeout,
	})
	if !mediaClient.Configured() {
		slog.Warn("cloudinary credentials missing; uploads will fail", "category", logging.CategoryMedia)
	}
	mailClient := mail.NewClient(mail.Config{
		APIKey:  cfg.ResendAPIKey,
		Timeout: cfg.MailTimeout,
	})
	if !mailClient.Configured() {
		slog.Warn("RESEND_API_KEY is not set; contact messages will fail", "category", logging.CategoryMail)
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		slog.Warn("geoip database unavailable", "path", cfg.GeoIPDBPath, "error", err)
	}
	defer func() { _ = geo.Close() }()

	var svcMetrics service.Metrics
	if m != nil {
		svcMetrics = m
	}

	events := service.NewEventService(service.EventServiceOptions{
		Store:          eventStore,
		Media:          mediaClient,
		Images:         imaging.NewProcessor(cfg.MaxImageDimension),
		Cache:          eventCache,
		Logger:         logger,
		Metrics:        svcMetrics,
		Folder:         cfg.MediaFolder,
		CleanupTimeout: cfg.MediaTimeout,
	})
	contact := service.NewContactService(service.ContactServiceOptions{
		Mailer:  mailClient,
		GeoIP:   geo,
		From:    cfg.ContactFrom,
		To:      cfg.ContactTo,
		Logger:  logger,
		Metrics: svcMetrics,
	})

	// Background jobs
	sched := scheduler.New(logger)
	if cfg.GeoIPEnabled() {
		if err := sched.Add("geoip-reload", cfg.GeoIPReloadSchedule, geo.Reload); err != nil {
			return fmt.Errorf("scheduling geoip reload: %w", err)
		}
	}
	if err := sched.Add("store-ping", cfg.StorePingSchedule, eventStore.Ping); err != nil {
		return fmt.Errorf("scheduling store ping: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Management key
	guard := middleware.NewKeyGuard(middleware.DefaultKeyGuardConfig())
	defer guard.Close()
	manageAuth := middleware.NewManageAuth(middleware.NewKeyVerifier(cfg.ManageKey, cfg.ManageKeyHash), guard)

	templatesFS, err := web.TemplatesFS()
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: sessionManager,
		IsDev:          isDev,
		Version:        info.Version,
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.ForwardedIP(cfg.TrustProxy))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	if m != nil {
		r.Use(middleware.RequestMetrics(m))
	}
	r.Use(middleware.Timeout(cfg.RequestLimit))
	r.Use(middleware.StripTrailingSlash)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(isDev)))

	writeLimiter := middleware.NewRateLimiter("write", cfg.WriteRateLimit, cfg.WriteRateBurst)
	contactLimiter := middleware.NewRateLimiter("contact", cfg.ContactRateLimit, cfg.ContactRateBurst)

	// JSON API
	apiHandler := api.NewHandler(api.Options{
		Events:         events,
		Contact:        contact,
		Signer:         mediaClient,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	api.Register(r, apiHandler, api.RouteOptions{
		Auth:           manageAuth,
		WriteLimiter:   writeLimiter,
		ContactLimiter: contactLimiter,
	})

	// HTML pages
	site := seo.Site{Name: cfg.SiteName, URL: cfg.SiteURL}
	eventsHandler := handler.NewEventsHandler(events, renderer, logger, site, cfg.MaxUploadBytes)
	contactHandler := handler.NewContactHandler(contact, renderer, logger)
	registerPages(r, pageRoutes{
		sessions:       sessionManager,
		auth:           manageAuth,
		csrf:           middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), isDev, cfg.ServerPort)),
		contactLimiter: contactLimiter,
		events:         eventsHandler,
		contact:        contactHandler,
	})

	seoHandler := handler.NewSEOHandler(events, site, isDev, logger)
	r.Get(handler.RouteRobots, seoHandler.Robots)
	r.Get(handler.RouteSitemap, seoHandler.Sitemap)

	// Health checks
	healthHandler := handler.NewHealthHandler(handler.HealthOptions{
		Store: eventStore,
		Cache: handler.PingFunc(func(ctx context.Context) error {
			_, err := cacher.Has(ctx, "health:probe")
			return err
		}),
		CacheBackend:    backend,
		MediaConfigured: mediaClient.Configured(),
		MailConfigured:  mailClient.Configured(),
		Authorized:      manageAuth.Authorized,
		Version:         info,
	})
	r.Get(handler.RouteHealth, healthHandler.Health)
	r.Get(handler.RouteHealthLive, healthHandler.Liveness)
	r.Get(handler.RouteHealthReady, healthHandler.Readiness)

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	// Static assets
	staticFS, err := web.Static()
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	r.With(middleware.StaticCache(24*time.Hour)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.NotFound(eventsHandler.NotFound)

	// Uploads may take the whole request budget to arrive and process.
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       cfg.RequestLimit,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestLimit + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// printKeyHash reads one line from in and prints its Argon2id hash.
func printKeyHash(in io.Reader) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading key: %w", err)
	}
	hash, err := auth.HashKey(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	_, _ = fmt.Println(hash)
	return nil
}

// openStore opens the configured event store. The SQLite backend also
// returns its database so sessions can persist in it.
func openStore(ctx context.Context, cfg *config.Config) (store.EventStore, *sql.DB, func(), error) {
	if cfg.StoreDriver == config.StoreSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		slog.Info("initializing database", "path", cfg.SQLitePath)
		db, err := store.NewDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initializing database: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database ready")
		closeDB := func() {
			if err := db.Close(); err != nil {
				slog.Error("error closing database connection", "error", err)
			}
		}
		return store.NewSQLiteEventStore(db, cfg.DBTimeout), db, closeDB, nil
	}

	provider := store.NewProvider(store.MongoConfig{
		URI:               cfg.MongoURI,
		Database:          cfg.MongoDB,
		ConnectionTimeout: cfg.DBTimeout,
	})
	eventStore := store.NewMongoEventStore(provider, cfg.DBTimeout)
	// A failed first ping is not fatal: the provider dials again on demand.
	if err := eventStore.Ping(ctx); err != nil {
		slog.Warn("mongodb unavailable at startup", "error", err, "category", logging.CategoryStore)
	}
	closeMongo := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			slog.Error("error closing mongodb connection", "error", err)
		}
	}
	return eventStore, nil, closeMongo, nil
}

// pageRoutes holds the handlers and middleware of the HTML pages.
type pageRoutes struct {
	sessions       *scs.SessionManager
	auth           *middleware.ManageAuth
	csrf           func(http.Handler) http.Handler
	contactLimiter *middleware.RateLimiter
	events         *handler.EventsHandler
	contact        *handler.ContactHandler
}

// registerPages mounts the public pages and the management console.
func registerPages(r chi.Router, p pageRoutes) {
	r.Group(func(r chi.Router) {
		r.Use(p.sessions.LoadAndSave)

		r.Get(handler.RouteRoot, func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, handler.RouteEventList, http.StatusFound)
		})
		r.Get(handler.RouteEventList, p.events.List)
		r.With(p.auth.Console, middleware.NoStore).Get(handler.RouteEventManage, p.events.Manage)
		r.Get(handler.RouteEventDetail, p.events.Detail)

		r.Group(func(r chi.Router) {
			r.Use(p.csrf)
			r.Get(handler.RouteContact, p.contact.Form)
			r.With(p.contactLimiter.HTMLMiddleware()).Post(handler.RouteContact, p.contact.Submit)
		})
	})
}
