package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/db"
	httpx "github.com/icees-go/icees-api/internal/http"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *config.Config
	Catalog  *catalog.Catalog
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *httpx.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// New loads configuration and wires every component. Close releases them.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.Telemetry.Version,
	})

	dbs, err := db.Open(cfg.DB, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init db: %w", err)
	}
	a.dbService = dbs
	a.DB = dbs.DB()
	if err := db.AutoMigrateAll(a.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.FeaturesPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog = cat
	bins, err := catalog.LoadBins(cfg.Catalog.BinsPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load bins: %w", err)
	}

	a.Clients = wireClients(log, cfg)
	a.Repos = wireRepos(a.DB, cat, log)
	a.Services = wireServices(log, cfg, cat, a.Clients, a.Repos)

	sqlDB, err := a.DB.DB()
	if err != nil {
		a.Close()
		return nil, err
	}
	handlers := wireHandlers(log, a.Services, cat, bins, sqlDB)
	middleware := wireMiddleware(log, cfg)
	a.Server = httpx.NewServer(cfg.HTTP, routerConfig(log, cfg, a.Services, handlers, middleware))
	return a, nil
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", a.Cfg.HTTP.Addr)
		errCh <- a.Server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.Log.Info("shutting down http server")
	if err := a.Server.Shutdown(context.Background(), a.Cfg.HTTP.ShutdownTimeout.Duration); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close(a.Log)
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
