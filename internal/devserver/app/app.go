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

	devhttp "github.com/aussiebroadwan/emstore/internal/devserver/http"
	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/internal/devserver/store"
	"github.com/aussiebroadwan/emstore/internal/devserver/store/drivers/sqlite"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/jwtx"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the development server together.
type Application struct {
	cfg    Config
	scheme authsdk.Scheme
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager
	sealer     *cryptox.Sealer
	hasher     *cryptox.PasswordHasher

	authService         *service.AuthService
	campaignService     *service.CampaignService
	entryService        *service.EntryService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *devhttp.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	scheme, err := authsdk.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:    cfg,
		scheme: scheme,
		logger: slogx.New(slogx.Config{
			Service: "emstore-server",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	pepper, err := cryptox.LoadPepper(cfg.PepperFile)
	if err != nil {
		return nil, err
	}
	app.hasher = cryptox.NewPasswordHasher(pepper)

	if app.sealer, err = InitSealer(cfg, app.logger); err != nil {
		return nil, err
	}
	if app.keyManager, err = InitKeys(cfg, app.logger); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed handler, mainly for in-process use.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("emstore server starting",
		"port", app.cfg.Port,
		"scheme", string(app.scheme),
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
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

// Shutdown drains in-flight requests and releases the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down emstore server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("emstore server stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_time_format=sqlite", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:      app.db,
		Hasher:     app.hasher,
		KeyManager: app.keyManager,
		SessionTTL: app.cfg.SessionTTL,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	app.campaignService = &service.CampaignService{
		Store:             app.db,
		Sealer:            app.sealer,
		MaxAttachmentSize: app.cfg.MaxAttachmentSize,
	}
	app.entryService = &service.EntryService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := devhttp.NewRouter(
		app.scheme,
		app.keyManager.KeySet(),
		app.keyManager.Verifier(),
		BuildVersion,
		app.db,
		app.logger,
	)
	router.SecureCookies = app.cfg.SecureCookies
	router.AuthService = app.authService
	router.CampaignService = app.campaignService
	router.EntryService = app.entryService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
