// Package app wires the client components together and exposes the call
// surface used by the application shell.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/pantryclient/internal/client/auth"
	"github.com/dmitrijs2005/pantryclient/internal/client/cache"
	"github.com/dmitrijs2005/pantryclient/internal/client/config"
	"github.com/dmitrijs2005/pantryclient/internal/client/credentials"
	"github.com/dmitrijs2005/pantryclient/internal/client/migrations"
	"github.com/dmitrijs2005/pantryclient/internal/client/profile"
	"github.com/dmitrijs2005/pantryclient/internal/client/repositories/cacheentries"
	"github.com/dmitrijs2005/pantryclient/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pantryclient/internal/client/security"
	"github.com/dmitrijs2005/pantryclient/internal/client/session"
	"github.com/dmitrijs2005/pantryclient/internal/client/telemetry"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"github.com/dmitrijs2005/pantryclient/internal/dbx"
	"github.com/dmitrijs2005/pantryclient/internal/filex"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

const meterName = "github.com/dmitrijs2005/pantryclient"

// Options carries dependencies that are normally taken from the process
// environment. Zero values select the defaults.
type Options struct {
	// Doer replaces the default *http.Client.
	Doer           transport.Doer
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

// App owns every client component. Build it with NewApp, call Start once the
// shell is ready and Close on shutdown.
type App struct {
	cfg    *config.Config
	db     *sql.DB
	logger logging.Logger

	// API is the request pipeline; use it with transport.Get, transport.Post
	// and friends.
	API         *transport.Client
	Cache       *cache.Store
	Credentials *credentials.Store
	Session     *session.Session
	Auth        *auth.Service
	Profile     *profile.Service

	janitor *cache.Janitor
}

// NewApp opens the local database and builds the client.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DatabasePath != ":memory:" {
		if _, err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := dbx.OpenSQLite(ctx, cfg.DatabasePath, migrations.Migrations)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, db, logger, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *sql.DB, logger logging.Logger, opts Options) (*App, error) {
	sealer, err := credentials.OpenSealer(ctx, db, cfg.DeviceSecret, cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewStore(metadata.NewSQLiteRepository(db), sealer, credentials.Options{
		Grace:  cfg.NearExpiryGrace,
		Logger: logger.With("component", "credentials"),
		Now:    opts.Now,
	})

	store := cache.NewStore(cacheentries.NewSQLiteRepository(db), cache.Options{
		DefaultTTL:     cfg.CacheTTL,
		RefreshTimeout: cfg.RequestTimeout,
		Logger:         logger.With("component", "cache"),
		Now:            opts.Now,
	})

	policy, err := security.NewPolicy(cfg.BaseURL, cfg.AllowedHosts, cfg.StrictSecurity)
	if err != nil {
		return nil, err
	}
	if policy.DevMode {
		logger.Warn(ctx, "development mode: transport security checks are relaxed", "host", policy.Hostname)
	}
	validator := security.NewValidator(policy, security.ValidatorOptions{
		Logger: logger.With("component", "security"),
		Now:    opts.Now,
	})

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tracing := telemetry.NewTracing(tp)
	metrics, err := telemetry.NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}

	doer := opts.Doer
	if doer == nil {
		doer = &http.Client{}
	}

	transportLogger := logger.With("component", "transport")
	api, err := transport.New(cfg.BaseURL, transport.Options{
		Doer:      doer,
		Validator: validator,
		Tokens:    creds,
		Interceptors: []transport.Interceptor{
			transport.RequestIDInterceptor(),
			tracing,
			transport.LoggingInterceptor(transportLogger),
		},
		Observers:      []transport.Observer{tracing, metrics},
		DefaultTimeout: cfg.RequestTimeout,
		Logger:         transportLogger,
		Now:            opts.Now,
	})
	if err != nil {
		return nil, err
	}

	prof := profile.NewService(api, store, profile.Options{
		TTL:           cfg.CacheTTL,
		UploadTimeout: cfg.LongRequestTimeout,
		Logger:        logger.With("component", "profile"),
		Now:           opts.Now,
	})

	sess, err := session.New(session.Config{
		Credentials:    creds,
		Profile:        prof,
		CheckInterval:  cfg.SessionCheckInterval,
		RefreshTimeout: cfg.RequestTimeout,
		Logger:         logger.With("component", "session"),
	})
	if err != nil {
		return nil, err
	}
	api.SetUnauthorizedHandler(sess)

	authSvc := auth.NewService(api, sess, auth.Options{
		CredentialTTL: cfg.CredentialTTL,
		Logger:        logger.With("component", "auth"),
	})

	janitor, err := cache.NewJanitor(store, cfg.CacheSweepSchedule, logger.With("component", "janitor"))
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		API:         api,
		Cache:       store,
		Credentials: creds,
		Session:     sess,
		Auth:        authSvc,
		Profile:     prof,
		janitor:     janitor,
	}, nil
}

// SetUnauthorizedCallback registers the function run once whenever an active
// session is ended by the client (401, expiry or logout).
func (a *App) SetUnauthorizedCallback(fn func()) {
	a.Session.SetUnauthorizedCallback(fn)
}

// Start resumes any persisted session and starts the background jobs.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	a.janitor.Start()
	return nil
}

// Close stops background work and releases the database. Cached data and
// credentials stay on disk.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	a.janitor.Stop(ctx)
	if err := a.Session.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop session: %w", err))
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}

// LongTimeout is the configured deadline for generation endpoints.
func (a *App) LongTimeout() time.Duration {
	return a.cfg.LongRequestTimeout
}
