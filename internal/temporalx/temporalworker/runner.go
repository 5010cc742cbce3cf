package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/platform/logger"
	"github.com/yungbote/progression-engine/internal/temporalx"
	"github.com/yungbote/progression-engine/internal/temporalx/remediation"
)

const (
	startBackoff    = 250 * time.Millisecond
	startBackoffMax = 5 * time.Second
)

// Runner polls the remediation task queue.
type Runner struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	cfg temporalx.Config
	run progression.RemediateFunc
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, run progression.RemediateFunc) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if run == nil {
		return nil, fmt.Errorf("temporal worker missing remediation func")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log.With("service", "TemporalWorker"), tc: tc, cfg: cfg.WithDefaults(), run: run}, nil
}

// Start starts the worker, retrying until cfg.DialMaxWait elapses. The worker
// stops when ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	if cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, r.log, cfg); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	deadline := time.Now().Add(cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		notFound := errors.As(startErr, &nfe)
		if notFound && cfg.AutoRegisterNamespace {
			_ = temporalx.EnsureNamespace(ctx, r.log, cfg)
		}
		if cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			if notFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.ClampBackoff(startBackoff, startBackoffMax, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.cfg.WorkerConcurrency,
	})
	acts := &remediation.Activities{Log: r.log, Run: r.run}
	w.RegisterWorkflowWithOptions(remediation.Workflow, workflow.RegisterOptions{Name: remediation.WorkflowName})
	w.RegisterActivityWithOptions(acts.Remediate, activity.RegisterOptions{Name: remediation.ActivityRemediate})
	return w
}
