package app

import (
	"context"
	"fmt"

	dataagg "github.com/yungbote/progression-engine/internal/data/aggregates"
	"github.com/yungbote/progression-engine/internal/data/repos"
	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	httpserver "github.com/yungbote/progression-engine/internal/http"
	httpH "github.com/yungbote/progression-engine/internal/http/handlers"
	httpMW "github.com/yungbote/progression-engine/internal/http/middleware"
	"github.com/yungbote/progression-engine/internal/jobs"
	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
	"github.com/yungbote/progression-engine/internal/platform/keylock"
	"github.com/yungbote/progression-engine/internal/platform/openai"
	"github.com/yungbote/progression-engine/internal/platform/redisx"
	"github.com/yungbote/progression-engine/internal/realtime"
	"github.com/yungbote/progression-engine/internal/realtime/bus"
	"github.com/yungbote/progression-engine/internal/temporalx"
	"github.com/yungbote/progression-engine/internal/temporalx/remediation"
	"github.com/yungbote/progression-engine/internal/temporalx/temporalworker"
)

func (a *App) wireInfra() error {
	theDB, err := OpenDB(a.Log, a.Cfg.DB)
	if err != nil {
		return err
	}
	a.DB = theDB

	if a.Cfg.Redis.Enabled() {
		rdb, err := redisx.New(a.ctx, a.Cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.Redis = rdb
		b, err := bus.NewRedisBus(a.Log, rdb, a.Cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		a.Bus = b
	} else {
		a.Log.Warn("REDIS_ADDR not set; events stay inside this replica")
		a.Bus = bus.NewMemoryBus()
	}
	a.Hub = realtime.NewHub(a.Log)
	return nil
}

func (a *App) wireProgression() error {
	cfg := a.Cfg

	limits := domainagg.PlanLimits{MaxMonths: cfg.Progression.MaxMonths, MaxDaysPerMonth: cfg.Progression.MaxDaysPerMonth}
	locks := []keylock.Locker{keylock.NewLocal()}
	if a.Redis != nil {
		locks = append(locks, keylock.NewRedis(a.Log, a.Redis, cfg.Progression.LockTTL))
	}

	var gen content.Generator
	if cfg.OpenAI.Enabled() {
		ai, err := openai.NewClient(a.Log, cfg.OpenAI)
		if err != nil {
			return fmt.Errorf("init openai: %w", err)
		}
		gen = content.NewLLMGenerator(a.Log, ai)
	} else {
		a.Log.Warn("OPENAI_API_KEY not set; serving fallback content")
	}

	plans := repos.NewPlanRepo(a.DB, a.Log)
	months := repos.NewMonthRepo(a.DB, a.Log)
	days := repos.NewDayRepo(a.DB, a.Log)
	quizzes := repos.NewQuizRepo(a.DB, a.Log)
	subs := repos.NewSubmissionRepo(a.DB, a.Log)
	events := repos.NewEventRepo(a.DB, a.Log)

	agg := dataagg.NewProgressionAggregate(dataagg.ProgressionAggregateDeps{
		Base: dataagg.BaseDeps{
			DB:        a.DB,
			Log:       a.Log,
			Hooks:     dataagg.NewObservabilityHooks(a.Metrics),
			TxTimeout: cfg.Progression.LockTimeout,
		},
		Plans:                    plans,
		Months:                   months,
		Days:                     days,
		Quizzes:                  quizzes,
		Submissions:              subs,
		Events:                   events,
		RemediationAfterAttempts: cfg.Progression.RemediationAfterAttempts,
		FallbackQuizQuestions:    cfg.Content.QuizQuestions,
		Limits:                   limits,
	})

	a.Publisher = progression.NewPublisher(a.Log, a.Bus, events)
	uc := progression.New(progression.UsecasesDeps{
		DB:              a.DB,
		Log:             a.Log,
		Aggregate:       agg,
		Plans:           plans,
		Months:          months,
		Days:            days,
		Quizzes:         quizzes,
		Submissions:     subs,
		Events:          events,
		Content:         content.NewResilient(a.Log, gen, cfg.Content.Timeout),
		Locks:           keylock.Chain(locks...),
		Publisher:       a.Publisher,
		LockTimeout:     cfg.Progression.LockTimeout,
		QuizQuestions:   cfg.Content.QuizQuestions,
		RetakeQuestions: cfg.Content.RetakeQuestions,
		Limits:          limits,
	})

	a.pool = progression.NewPoolDispatcher(a.ctx, a.Log, uc.Remediate, cfg.Progression.RemediationWorkers, cfg.Progression.RemediationTimeout)
	var dispatcher progression.Dispatcher = a.pool

	if cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(a.Log, cfg.Temporal)
		if err != nil {
			return fmt.Errorf("init temporal: %w", err)
		}
		a.temporal = tc
		runner, err := temporalworker.NewRunner(a.Log, tc, cfg.Temporal, uc.Remediate)
		if err != nil {
			return fmt.Errorf("init temporal worker: %w", err)
		}
		a.worker = runner
		dispatcher = remediation.NewDispatcher(a.Log, tc, cfg.Temporal.TaskQueue, a.pool)
	}

	a.Progression = uc.WithDispatcher(dispatcher)
	return nil
}

func (a *App) wireJobs() error {
	cfg := a.Cfg.Jobs
	a.Scheduler = jobs.NewScheduler(a.Log)
	if err := a.Scheduler.Add(jobs.OutboxRelayJob(a.Publisher, cfg.OutboxRelayEvery, cfg.OutboxGrace, cfg.OutboxBatch)); err != nil {
		return err
	}
	return a.Scheduler.Add(jobs.GaugeRefreshJob(a.DB, repos.NewPlanRepo(a.DB, a.Log), a.Redis, cfg.GaugeRefreshEvery))
}

func (a *App) wireHTTP() {
	checks := map[string]httpH.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	serviceName := ""
	if a.Cfg.Otel.Enabled {
		serviceName = a.Cfg.Otel.ServiceName
	}
	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:            a.Log,
		Metrics:        a.Metrics,
		ServiceName:    serviceName,
		CORSOrigins:    a.Cfg.HTTP.CORSOrigins,
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Log, httpMW.AuthConfig{JWTSecret: a.Cfg.Auth.JWTSecret, AllowLearnerHeader: a.Cfg.Auth.AllowLearnerHeader}),
		ProgressionHandler: httpH.NewProgressionHandler(httpH.ProgressionHandlerDeps{
			Log:         a.Log,
			Progression: a.Progression,
		}),
		RealtimeHandler: httpH.NewRealtimeHandler(a.Log, a.Hub),
		HealthHandler:   httpH.NewHealthHandler(checks),
	})
}
