package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/progression-engine/internal/data/repos"
	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
	"github.com/yungbote/progression-engine/internal/platform/keylock"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const (
	DefaultQuizQuestions       = 10
	DefaultRetakeQuestions     = 15
	DefaultLockTimeout         = 10 * time.Second
	DefaultProblemAreasTracked = 5
	DefaultProblemAreasPassed  = 3
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Aggregate domainagg.ProgressionAggregate

	Plans       repos.PlanRepo
	Months      repos.MonthRepo
	Days        repos.DayRepo
	Quizzes     repos.QuizRepo
	Submissions repos.SubmissionRepo
	Events      repos.EventRepo

	Content     *content.Resilient
	Locks       keylock.Locker
	Publisher   *Publisher
	Remediation Dispatcher

	LockTimeout     time.Duration
	QuizQuestions   int
	RetakeQuestions int
	Limits          domainagg.PlanLimits

	Now func() time.Time
}

// Usecases is the progression engine: it prepares content outside transactions,
// serializes writes per (learner, plan), runs the aggregate and publishes the
// committed transitions.
type Usecases struct {
	deps UsecasesDeps
	lazy *singleflight.Group
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("service", "ProgressionUsecases")
	if deps.Content == nil {
		deps.Content = content.NewResilient(deps.Log, nil, 0)
	}
	if deps.Locks == nil {
		deps.Locks = keylock.NewLocal()
	}
	if deps.Remediation == nil {
		deps.Remediation = noopDispatcher{}
	}
	if deps.LockTimeout <= 0 {
		deps.LockTimeout = DefaultLockTimeout
	}
	if deps.QuizQuestions <= 0 {
		deps.QuizQuestions = DefaultQuizQuestions
	}
	if deps.RetakeQuestions <= 0 {
		deps.RetakeQuestions = DefaultRetakeQuestions
	}
	deps.Limits = deps.Limits.WithDefaults()
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return Usecases{deps: deps, lazy: &singleflight.Group{}}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

// WithDispatcher installs the remediation dispatcher. Dispatchers usually wrap
// Remediate, so they are built after the Usecases they serve.
func (u Usecases) WithDispatcher(d Dispatcher) Usecases {
	if d == nil {
		d = noopDispatcher{}
	}
	u.deps.Remediation = d
	return u
}

// withPlanLock runs fn while holding the (learner, plan) lock.
func (u Usecases) withPlanLock(ctx context.Context, learnerID, planID uuid.UUID, fn func() error) error {
	lctx, cancel := context.WithTimeout(ctx, u.deps.LockTimeout)
	defer cancel()
	unlock, err := u.deps.Locks.Lock(lctx, planLockKey(learnerID, planID))
	if err != nil {
		return domainagg.NewError(domainagg.CodeRetryable, "Learning.Progression.Lock", "plan is busy, retry", err)
	}
	defer unlock()
	return fn()
}

func planLockKey(learnerID, planID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", learnerID, planID)
}

func notFound(op, msg string) error {
	return domainagg.NewError(domainagg.CodeNotFound, op, msg, nil)
}

func invalid(op, msg string) error {
	return domainagg.NewError(domainagg.CodeValidation, op, msg, nil)
}

func internal(op string, err error) error {
	return domainagg.NewError(domainagg.CodeInternal, op, "internal error", err)
}
