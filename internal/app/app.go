// Package app wires the lifecycle service graph from config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"insightline/internal/config"
	"insightline/internal/db"
	"insightline/internal/engine"
	"insightline/internal/engine/auth"
	"insightline/internal/events"
	"insightline/internal/migrate"
	"insightline/internal/notify"
	"insightline/internal/repo"
)

type Options struct {
	Workspace string
	Logger    *slog.Logger
	// Notifier overrides the notifier selected by config.
	Notifier engine.Notifier
	// RedisClient overrides the client built from events.redis.addr.
	RedisClient redis.UniversalClient
}

// App holds the wired components. Close releases them.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Repo    repo.Repo
	Bus     *events.Bus
	Journal *events.Journal
	Service *engine.Service
	Auth    auth.Service
	Logger  *slog.Logger

	closers []func() error
}

// Build opens storage, applies migrations, syncs roles and assembles the service.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: cfg.Storage.Path})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	if err := migrate.Migrate(ctx, conn); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Repo = repo.Repo{DB: conn}
	if err := a.Repo.SyncRoles(ctx, cfg.RolePermissions()); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("sync roles: %w", err)
	}
	a.Auth = auth.Service{Store: a.Repo}

	a.Bus = events.NewBus(logger)
	sinks := events.Fanout{a.Bus}
	if cfg.Events.Journal {
		a.Journal = &events.Journal{DB: conn}
		sinks = append(sinks, a.Journal)
	}
	if client := a.redisClient(cfg, opts); client != nil {
		r := events.NewRedis(client, events.WithChannel(cfg.Events.Redis.Channel))
		a.closers = append(a.closers, r.Close)
		sinks = append(sinks, r)
		logger.Debug("redis event sink enabled", "channel", r.Channel())
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = a.notifier(cfg)
	}
	a.Service = engine.NewService(a.Repo, sinks, notifier, engine.Options{
		Platforms:       cfg.Lifecycle.Platforms,
		BulkConcurrency: cfg.Lifecycle.BulkConcurrency,
		Logger:          logger,
	})
	a.closers = append(a.closers, func() error { a.Service.Close(); return nil })
	return a, nil
}

func (a *App) redisClient(cfg *config.Config, opts Options) redis.UniversalClient {
	if opts.RedisClient != nil {
		return opts.RedisClient
	}
	if cfg.Events.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Events.Redis.Addr,
		Password: cfg.Events.Redis.Password,
		DB:       cfg.Events.Redis.DB,
	})
}

func (a *App) notifier(cfg *config.Config) engine.Notifier {
	switch cfg.Notify.Mode {
	case config.NotifyWebhook:
		return notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Secret, cfg.NotifyTimeout())
	case config.NotifyNone:
		return notify.Discard{}
	default:
		return notify.Queue{Repo: a.Repo}
	}
}

// Close releases components in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
