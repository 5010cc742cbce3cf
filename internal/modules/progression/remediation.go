package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// RemediationRequest asks for a day's lesson to be regenerated toward the
// concepts the learner keeps missing. Attempt is the failed-attempt count that
// triggered it; a newer failure makes older requests stale.
type RemediationRequest struct {
	LearnerID uuid.UUID `json:"learner_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	DayID     uuid.UUID `json:"day_id"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	Attempt   int       `json:"attempt"`
}

// Dispatcher enqueues remediation. Dispatch must not block on the work itself
// and its failure never fails the triggering request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req RemediationRequest) error
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, RemediationRequest) error { return nil }

type RemediationOutcome struct {
	Applied bool     `json:"applied"`
	Focus   []string `json:"focus,omitempty"`
}

// RemediateFunc is the job body dispatchers run; Usecases.Remediate in production.
type RemediateFunc func(ctx context.Context, req RemediationRequest) (RemediationOutcome, error)

// Remediate regenerates the lesson content for req.DayID. It is the unit of work
// run by every Dispatcher.
func (u Usecases) Remediate(ctx context.Context, req RemediationRequest) (RemediationOutcome, error) {
	const op = "Learning.Progression.Remediate"
	var out RemediationOutcome
	if req.PlanID == uuid.Nil || req.DayID == uuid.Nil {
		return out, invalid(op, "missing plan_id or day_id")
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.GetByID(dbc, req.PlanID)
	if err != nil {
		return out, internal(op, err)
	}
	day, err := u.deps.Days.GetByID(dbc, req.DayID)
	if err != nil {
		return out, internal(op, err)
	}
	if plan == nil || day == nil || day.PlanID != plan.ID {
		return out, notFound(op, "day not found")
	}
	if day.CompletedAt != nil {
		observability.Current().IncRemediation("skipped")
		return out, nil
	}

	areas, err := u.dayProblemAreas(dbc, day)
	if err != nil {
		return out, internal(op, err)
	}
	if len(areas) > DefaultProblemAreasPassed {
		areas = areas[:DefaultProblemAreasPassed]
	}
	out.Focus = FocusPrompts(areas)
	lesson := u.deps.Content.Lesson(ctx, content.LessonRequest{
		Concept: day.Concept,
		Learner: plan.Learner.Data(),
		Focus:   out.Focus,
	})

	var applied domainagg.ApplyRemediationResult
	err = u.withPlanLock(ctx, plan.LearnerID, plan.ID, func() error {
		var aerr error
		applied, aerr = u.deps.Aggregate.ApplyRemediation(ctx, domainagg.ApplyRemediationInput{
			PlanID:  plan.ID,
			DayID:   day.ID,
			Attempt: req.Attempt,
			Lesson:  lesson,
			At:      u.deps.Now(),
		})
		return aerr
	})
	if err != nil {
		observability.Current().IncRemediation("failed")
		return out, err
	}
	out.Applied = applied.Applied
	if applied.Applied {
		observability.Current().IncRemediation("applied")
		u.deps.Log.Info("remediation applied",
			"plan_id", plan.ID, "month", day.MonthIndex, "day", day.Index,
			"revision", applied.Day.ContentRevision, "focus", len(out.Focus))
	} else {
		observability.Current().IncRemediation("stale")
	}
	return out, nil
}

func (u Usecases) dayProblemAreas(dbc dbctx.Context, day *types.Day) ([]types.ProblemArea, error) {
	subs, err := u.deps.Submissions.ListByDay(dbc, day.ID)
	if err != nil {
		return nil, err
	}
	quizzes, err := u.deps.Quizzes.ListByDay(dbc, day.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Quiz, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
	}
	return ProblemAreas(subs, byID, day.Concept, DefaultProblemAreasTracked), nil
}

// PoolDispatcher runs remediation on a bounded set of goroutines. When every
// slot is busy the request is dropped and logged.
type PoolDispatcher struct {
	log     *logger.Logger
	run     RemediateFunc
	sem     *semaphore.Weighted
	workers int64
	base    context.Context
	timeout time.Duration
}

// NewPoolDispatcher runs jobs detached from the request under base, which is
// canceled on shutdown.
func NewPoolDispatcher(base context.Context, log *logger.Logger, run RemediateFunc, workers int, timeout time.Duration) *PoolDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	if base == nil {
		base = context.Background()
	}
	return &PoolDispatcher{
		log:     log.With("service", "RemediationPool"),
		run:     run,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: int64(workers),
		base:    base,
		timeout: timeout,
	}
}

func (d *PoolDispatcher) Dispatch(_ context.Context, req RemediationRequest) error {
	if !d.sem.TryAcquire(1) {
		observability.Current().IncRemediation("dropped")
		d.log.Warn("remediation pool full; dropping request", "plan_id", req.PlanID, "day_id", req.DayID)
		return fmt.Errorf("remediation pool full")
	}
	observability.Current().IncRemediation("dispatched")
	go func() {
		defer d.sem.Release(1)
		ctx, cancel := context.WithTimeout(d.base, d.timeout)
		defer cancel()
		if _, err := d.run(ctx, req); err != nil {
			d.log.Warn("remediation failed", "plan_id", req.PlanID, "day_id", req.DayID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every in-flight job has finished or ctx ends.
func (d *PoolDispatcher) Wait(ctx context.Context) error {
	if err := d.sem.Acquire(ctx, d.workers); err != nil {
		return err
	}
	d.sem.Release(d.workers)
	return nil
}
