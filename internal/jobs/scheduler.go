package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// Job is a periodic maintenance task.
type Job struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs Jobs on fixed intervals. A job never overlaps itself and a
// panicking job is recorded as failed.
type Scheduler struct {
	log   *logger.Logger
	cron  *gocron.Scheduler
	mu    sync.Mutex
	ctx   context.Context
	stop  context.CancelFunc
	names map[string]bool
}

func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:   log.With("component", "JobScheduler"),
		cron:  gocron.NewScheduler(time.UTC),
		ctx:   ctx,
		stop:  cancel,
		names: map[string]bool{},
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run func")
	}
	if job.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[job.Name] {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := s.cron.Every(job.Every).SingletonMode().Do(s.runJob, job); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.names[job.Name] = true
	return nil
}

// Start runs every job once and then on its interval, without blocking.
func (s *Scheduler) Start() {
	s.log.Info("starting job scheduler", "jobs", len(s.names))
	s.cron.StartAsync()
}

// Stop cancels running jobs and stops scheduling.
func (s *Scheduler) Stop() {
	s.stop()
	s.cron.Stop()
}

func (s *Scheduler) runJob(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	status := "succeeded"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.log.Error("job panic", "job", job.Name, "panic", r)
		}
		observability.Current().IncJobRun(job.Name, status)
		s.log.Debug("job finished", "job", job.Name, "status", status, "duration_ms", time.Since(start).Milliseconds())
	}()
	if err := job.Run(ctx); err != nil {
		status = "failed"
		s.log.Warn("job failed", "job", job.Name, "error", err)
	}
}
