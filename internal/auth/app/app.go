package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	httpapi "github.com/quickqr/qrbot/internal/auth/http"
	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/internal/auth/store/drivers/sqlite"
	"github.com/quickqr/qrbot/pkg/cryptox"
	"github.com/quickqr/qrbot/pkg/jwtx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires together the trust service: stores, services and the
// HTTP surface.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	registry kv.Store

	tokenService        *service.TokenService
	limiter             *service.RateLimiter
	audit               *service.Auditor
	authService         *service.AuthService
	adminService        *service.UserAdminService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "qrbot-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     BuildVersion,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	cryptox.SetParams(cryptox.Params{
		MemoryKiB:   uint32(cfg.Argon2MemoryKiB),
		Iterations:  uint32(cfg.Argon2Iterations),
		Parallelism: uint8(cfg.Argon2Parallelism),
	})

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initKV()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, background workers and stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.registry.Close(); err != nil {
		app.logger.Error("error closing kv store", "error", err)
	}

	if app.cfg.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens the SQLite store and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKV picks the kv driver: Redis when configured, otherwise in-process.
func (app *Application) initKV() {
	if app.cfg.RedisAddr != "" {
		app.registry = kv.NewRedis(app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
		app.logger.Info("using redis kv store", "addr", app.cfg.RedisAddr)
		return
	}
	app.registry = kv.NewMemory()
	app.logger.Info("using in-process kv store; counters are per instance")
}

func (app *Application) initServices() {
	secret := app.cfg.JWTSecret
	if secret == "" {
		// Dev only: Validate rejects an empty secret outside dev. A random
		// secret means every restart invalidates outstanding tokens.
		generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			panic(err)
		}
		secret = generated
		app.logger.Warn("AUTH_JWT_SECRET not set, using a random secret; tokens will not survive restarts")
	}

	app.tokenService = service.NewTokenService(
		jwtx.NewHS256([]byte(secret), app.cfg.Issuer, 5*time.Second),
		app.registry,
		app.cfg.Issuer,
		app.cfg.TokenTTL,
	)

	app.limiter = service.NewRateLimiter(app.registry, app.cfg.RateLimits, app.cfg.RateLimitFailOpen)
	app.audit = &service.Auditor{Store: app.db}

	app.authService = service.NewAuthService(app.db, app.tokenService, app.limiter, app.audit)
	app.authService.Policy.MinLength = app.cfg.PasswordMinLength
	app.authService.Policy.MinClasses = app.cfg.PasswordMinClasses
	app.authService.LockoutThreshold = app.cfg.LockoutThreshold
	app.authService.LockoutDuration = app.cfg.LockoutDuration

	app.adminService = &service.UserAdminService{Store: app.db, Audit: app.audit}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.EventRetention = app.cfg.AuditRetention
	if mem, ok := app.registry.(*kv.Memory); ok {
		app.housekeepingService.Sweeper = mem
	}
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(BuildVersion, app.db, app.registry, app.logger)
	app.router.AuthService = app.authService
	app.router.AdminService = app.adminService
	app.router.Audit = app.audit
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
