// Package app assembles the feed service from configuration. Feeds, rules and
// the catalog come from Postgres, or from a workspace file when one is set.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/generator"
	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/mapper"
	"github.com/kosarica/feed-service/internal/notify"
	"github.com/kosarica/feed-service/internal/scheduler"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/sweepers"
	"github.com/kosarica/feed-service/internal/upload"
	"github.com/kosarica/feed-service/internal/workspace"
)

// App holds the wired components
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool // nil without Postgres
	Workspace *workspace.Workspace
	Storage   *storage.LocalStorage
	Feeds     feeds.Repository
	Mappings  mapper.Repository
	Catalog   catalog.Source
	Logs      logstore.Store
	Notifier  notify.Notifier
	Generator *generator.Generator
	Uploader  *upload.Uploader
	Scheduler *scheduler.Scheduler
	Sweeper   *sweepers.GenerationSweeper

	closers []func()
}

// New builds the application
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := storage.NewLocalStorage(cfg.Storage.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.Storage = store

	if err := a.openLogs(ctx, logger); err != nil {
		return nil, err
	}

	if cfg.Workspace != "" {
		ws, err := workspace.Load(cfg.Workspace)
		if err != nil {
			return nil, err
		}
		a.Workspace = ws
		a.Feeds, a.Mappings, a.Catalog = ws, ws, ws.Catalog()
		logger.Info().Str("workspace", cfg.Workspace).Int("feeds", len(ws.Feeds)).Msg("Workspace loaded")
	} else {
		a.Feeds = database.NewFeedRepository(a.Pool)
		a.Mappings = database.NewMappingRepository(a.Pool)
		a.Catalog = database.NewCatalogSource(a.Pool)
	}

	client := feedhttp.NewClient(cfg.Upload.RateLimit, cfg.Upload.Timeout)
	a.Notifier = newNotifier(cfg.Notify, client, logger)
	a.Uploader = upload.New(client, store, logger)

	a.Generator, err = generator.New(generator.Deps{
		Catalog:  a.Catalog,
		Logs:     a.Logs,
		Mappings: a.Mappings,
		Output:   store,
		Notifier: a.Notifier,
		Logger:   logger,
	}, cfg.Generation)
	if err != nil {
		return nil, err
	}

	deps := scheduler.Deps{
		Feeds:     a.Feeds,
		Generator: a.Generator,
		Logs:      a.Logs,
		Uploader:  a.Uploader,
		Checksums: store,
		Notifier:  a.Notifier,
		Logger:    logger,
	}
	if a.Pool != nil {
		deps.Publications = database.NewPublicationRepository(a.Pool)
	}
	a.Scheduler, err = scheduler.New(deps, cfg.Scheduler.Config)
	if err != nil {
		return nil, err
	}

	sweeperLogger := logger.With().Str("component", "sweeper").Logger()
	a.Sweeper = sweepers.NewGenerationSweeper(a.Generator, a.Logs, &sweeperLogger, cfg.Sweeper.Interval, cfg.Sweeper.Retention)

	ok = true
	return a, nil
}

func (a *App) openLogs(ctx context.Context, logger zerolog.Logger) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "sqlite":
		s, err := logstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.Logs = s
		a.closers = append(a.closers, func() { _ = s.Close() })
		logger.Info().Str("path", cfg.SQLitePath).Msg("Using SQLite generation logs")
		return nil
	case "postgres":
		if cfg.URL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
		if cfg.AutoMigrate {
			applied, err := database.Migrate(ctx, cfg.URL)
			if err != nil {
				return err
			}
			if len(applied) > 0 {
				logger.Info().Strs("versions", applied).Msg("Applied migrations")
			}
		}
		err := database.Connect(ctx, cfg.URL, database.PoolConfig{
			MaxConns:    cfg.MaxConnections,
			MinConns:    cfg.MinConnections,
			MaxLifetime: cfg.MaxConnLifetime,
			MaxIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Pool = database.Pool()
		a.Logs = database.NewLogRepository(a.Pool)
		a.closers = append(a.closers, database.Close)
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func newNotifier(cfg config.NotifyConfig, client *feedhttp.Client, logger zerolog.Logger) notify.Notifier {
	n := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		n = append(n, notify.NewWebhookNotifier(client, cfg.WebhookURL, cfg.WebhookToken))
	}
	return n
}

// Close releases database handles
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
