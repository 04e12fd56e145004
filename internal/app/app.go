package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/styletag-backend/internal/data/db"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

// Options selects which parts of the app are built.
type Options struct {
	// NeedLLM builds the model client, classifier and pipeline.
	NeedLLM bool
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Services Services

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger, opts Options) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log)

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}

	reposet := wireRepos(dbs.DB(), log)

	clients, err := wireClients(log, cfg, opts.NeedLLM)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}

	services, err := wireServices(log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		return nil, err
	}

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbs.DB(),
		Metrics:      metrics,
		Repos:        reposet,
		Clients:      clients,
		Services:     services,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	if a.Services.Pipeline == nil {
		return errors.New("serve requires the llm client")
	}
	return a.wireHTTP().Run(ctx, a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	a.Log.Sync()
}
