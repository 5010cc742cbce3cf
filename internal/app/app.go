package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/progression-engine/internal/data/db"
	httpserver "github.com/yungbote/progression-engine/internal/http"
	"github.com/yungbote/progression-engine/internal/jobs"
	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/logger"
	"github.com/yungbote/progression-engine/internal/realtime"
	"github.com/yungbote/progression-engine/internal/realtime/bus"
	"github.com/yungbote/progression-engine/internal/temporalx/temporalworker"
)

type App struct {
	Log         *logger.Logger
	Cfg         Config
	DB          *gorm.DB
	Redis       *goredis.Client
	Metrics     *observability.Metrics
	Hub         *realtime.Hub
	Bus         bus.Bus
	Progression progression.Usecases
	Publisher   *progression.Publisher
	Server      *httpserver.Server
	Scheduler   *jobs.Scheduler

	pool         *progression.PoolDispatcher
	temporal     temporalsdkclient.Client
	worker       *temporalworker.Runner
	otelShutdown func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires every dependency from cfg. Background work does not start until Start.
func New(cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Log: log, Cfg: cfg, ctx: ctx, cancel: cancel}

	a.Metrics = observability.Init(log, cfg.Metrics.Enabled)
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)

	if err := a.wireInfra(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireProgression(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireJobs(); err != nil {
		a.Close()
		return nil, err
	}
	a.wireHTTP()
	return a, nil
}

// OpenDB opens the configured database and migrates the progression schema.
func OpenDB(log *logger.Logger, cfg DBConfig) (*gorm.DB, error) {
	var (
		theDB *gorm.DB
		err   error
	)
	switch cfg.Driver {
	case DriverSQLite:
		theDB, err = db.OpenSQLite(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	default:
		pg, perr := db.NewPostgresService(log, cfg.Postgres)
		if perr != nil {
			return nil, fmt.Errorf("init postgres: %w", perr)
		}
		theDB = pg.DB()
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return theDB, nil
}

// Start launches the event forwarder, the scheduler and the Temporal worker.
func (a *App) Start() error {
	if a == nil || a.ctx == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Bus.StartForwarder(a.ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	a.Scheduler.Start()
	if a.worker != nil {
		go func() {
			if err := a.worker.Start(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Error("Temporal worker stopped", "error", err)
			}
		}()
	}
	return nil
}

// Run blocks serving HTTP until Shutdown.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run(a.Cfg.HTTP.Addr)
}

// Shutdown stops accepting requests, drains queued remediation and stops
// background work.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.pool != nil {
		if err := a.pool.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("remediation drain: %w", err))
		}
	}
	a.Close()
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.temporal != nil {
		a.temporal.Close()
		a.temporal = nil
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		a.Redis = nil
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		a.DB = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
