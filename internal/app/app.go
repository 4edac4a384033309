// Package app wires configuration into running services. The server and
// panelctl both start from New.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/panelwatch/internal/api"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/config"
	"github.com/lalith-99/panelwatch/internal/db"
	"github.com/lalith-99/panelwatch/internal/dispatch"
	"github.com/lalith-99/panelwatch/internal/impact"
	"github.com/lalith-99/panelwatch/internal/notify"
	"github.com/lalith-99/panelwatch/internal/panels"
	"github.com/lalith-99/panelwatch/internal/repository"
	"github.com/lalith-99/panelwatch/internal/repository/memory"
	"github.com/lalith-99/panelwatch/internal/repository/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	// DB is nil with store=memory; Redis is nil with dispatch.mode=inline.
	DB    *db.DB
	Redis *redis.Client

	Stores    repository.Stores
	Recorder  *changes.Recorder
	Notifier  *notify.Notifier
	Inbox     *notify.Inbox
	Processor *dispatch.Processor
	Panels    *panels.Service

	stream dispatch.Stream
}

// New opens the configured store and dispatch backend and builds the
// services on top of them. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		a.Stores = memory.New().Repositories()
	default:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.DB = database
		if cfg.Migrate {
			if err := database.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.Stores = postgres.NewStores(database.Pool())
	}

	a.Recorder = changes.NewRecorder(a.Stores.Panels, a.Stores.Changes, logger)
	a.Notifier = notify.NewNotifier(a.Stores.Notifications, logger)
	a.Inbox = notify.NewInbox(a.Stores.Notifications, logger)
	a.Processor = dispatch.NewProcessor(a.Stores.Changes, impact.NewClassifier(a.Stores.Views), a.Notifier, logger)

	var dispatcher panels.Dispatcher
	switch cfg.Dispatch.Mode {
	case config.DispatchRedis:
		client, err := dispatch.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.stream = dispatch.NewRedisStream(client, cfg.Dispatch.Stream, cfg.Dispatch.Group, cfg.Dispatch.Consumer)
		dispatcher = dispatch.NewRedisDispatcher(a.stream, logger)
	default:
		dispatcher = dispatch.NewInline(a.Processor, logger)
	}

	a.Panels = panels.NewService(a.Stores, a.Recorder, dispatcher, logger)

	logger.Info("services initialized",
		zap.String("store", cfg.Store),
		zap.String("dispatch", cfg.Dispatch.Mode),
	)
	return a, nil
}

// Worker returns the stream consumer, or nil when changes are dispatched
// inline.
func (a *App) Worker() *dispatch.Worker {
	if a.stream == nil {
		return nil
	}
	return dispatch.NewWorker(a.stream, a.Processor, dispatch.WorkerConfig{
		BatchSize:   int64(a.Config.Dispatch.BatchSize),
		Block:       a.Config.Dispatch.Block,
		ReclaimIdle: a.Config.Dispatch.ReclaimIdle,
	}, a.Logger.Named("worker"))
}

// Sweeper returns the outbox sweep, or nil when it is disabled.
func (a *App) Sweeper() *dispatch.Sweeper {
	if a.Config.Dispatch.SweepInterval <= 0 {
		return nil
	}
	return dispatch.NewSweeper(a.Stores.Changes, a.Processor, dispatch.SweepConfig{
		Interval:  a.Config.Dispatch.SweepInterval,
		Grace:     a.Config.Dispatch.SweepGrace,
		BatchSize: a.Config.Dispatch.SweepBatch,
	}, a.Logger.Named("sweeper"))
}

func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.Services{
		Panels:    a.Panels,
		Recorder:  a.Recorder,
		Processor: a.Processor,
		Notifier:  a.Notifier,
		Inbox:     a.Inbox,
		Health:    a,
	}, a.Config.JWTSecret, a.Logger)
}

// Health pings the database and Redis when they are in use.
func (a *App) Health(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.Health(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
