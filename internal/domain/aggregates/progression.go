package aggregates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// ProgressionAggregate owns every state transition of a learner's plan.
//
// Failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodePreconditionFailed, CodeRetryable, CodeInternal.
// Content is never generated inside these methods; callers pass pre-generated
// material and the aggregate falls back to deterministic content when it is absent.
type ProgressionAggregate interface {
	// CreatePlan persists a plan with its months. Month 1 is activated and its days materialized.
	CreatePlan(ctx context.Context, in CreatePlanInput) (CreatePlanResult, error)

	// StartDay enforces sequential unlocking (auto-healing acknowledged-but-unrecorded
	// completions), attaches a quiz when none is current and records the learner's focus.
	StartDay(ctx context.Context, in StartDayInput) (StartDayResult, error)

	// SubmitQuiz grades answers against the current quiz and appends to the ledger.
	// It never mutates plan, month or day state.
	SubmitQuiz(ctx context.Context, in SubmitQuizInput) (SubmitQuizResult, error)

	// CompleteDay acknowledges a passing submission and cascades month/plan transitions,
	// or records a failed attempt.
	CompleteDay(ctx context.Context, in CompleteDayInput) (CompleteDayResult, error)

	// RegenerateQuiz installs a new current quiz and supersedes the previous one.
	RegenerateQuiz(ctx context.Context, in RegenerateQuizInput) (RegenerateQuizResult, error)

	// EnsureDayMaterials attaches lesson content and a quiz to an unlocked day when missing.
	EnsureDayMaterials(ctx context.Context, in EnsureDayMaterialsInput) (EnsureDayMaterialsResult, error)

	// MaterializeMonthDays creates the days of a month that has none yet.
	MaterializeMonthDays(ctx context.Context, in MaterializeMonthDaysInput) (MaterializeMonthDaysResult, error)

	// ApplyRemediation stores regenerated lesson content for a day.
	ApplyRemediation(ctx context.Context, in ApplyRemediationInput) (ApplyRemediationResult, error)
}

// DayRef addresses one day of a learner's plan. ExpectedVersion, when set,
// must equal the plan's current version.
type DayRef struct {
	LearnerID       uuid.UUID
	PlanID          uuid.UUID
	Month           int
	Day             int
	ExpectedVersion *int
}

// GeneratedQuiz is quiz material produced outside the transaction.
type GeneratedQuiz struct {
	Questions    []progression.Question
	Source       string
	ProblemFocus []string
}

type MonthInput struct {
	Title       string
	Description string
	Goals       []string
	Topics      []string
	DaysTotal   int
	Days        []progression.DayOutline
}

const (
	DefaultMaxMonths       = 24
	DefaultMaxDaysPerMonth = 60
)

// PlanLimits caps how many months and days one CreatePlan may allocate.
// Zero fields take the defaults.
type PlanLimits struct {
	MaxMonths       int
	MaxDaysPerMonth int
}

func (l PlanLimits) WithDefaults() PlanLimits {
	if l.MaxMonths <= 0 {
		l.MaxMonths = DefaultMaxMonths
	}
	if l.MaxDaysPerMonth <= 0 {
		l.MaxDaysPerMonth = DefaultMaxDaysPerMonth
	}
	return l
}

// Check rejects plans larger than the limits with a validation error.
func (l PlanLimits) Check(op string, months []MonthInput) error {
	l = l.WithDefaults()
	if len(months) > l.MaxMonths {
		return NewError(CodeValidation, op, fmt.Sprintf("a plan may have at most %d months, got %d", l.MaxMonths, len(months)), nil)
	}
	for i, m := range months {
		days := m.DaysTotal
		if len(m.Days) > days {
			days = len(m.Days)
		}
		if days > l.MaxDaysPerMonth {
			return NewError(CodeValidation, op, fmt.Sprintf("month %d: at most %d days, got %d", i+1, l.MaxDaysPerMonth, days), nil)
		}
	}
	return nil
}

type CreatePlanInput struct {
	LearnerID uuid.UUID
	Title     string
	Learner   progression.LearnerProfile
	Months    []MonthInput
	CreatedAt time.Time
}

type CreatePlanResult struct {
	Plan   progression.Plan
	Months []progression.Month
}

type StartDayInput struct {
	DayRef
	Quiz   *GeneratedQuiz
	Lesson *progression.LessonContent
	// MonthDays materializes the requested month when starting it requires
	// activating a month that has no days yet.
	MonthDays []progression.DayOutline
	StartedAt time.Time
}

// DayKey identifies a day inside a plan.
type DayKey struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

type StartDayResult struct {
	Plan        progression.Plan
	Day         progression.Day
	Quiz        progression.Quiz
	QuizCreated bool
	FirstStart  bool
	Healed      []DayKey
	Events      []progression.ProgressionEvent
}

type SubmitQuizInput struct {
	DayRef
	Answers          []int
	TimeTakenSeconds *int
	SubmittedAt      time.Time
}

type SubmitQuizResult struct {
	Submission progression.Submission
}

type CompleteOutcome string

const (
	OutcomeCompleted        CompleteOutcome = "completed"
	OutcomeAlreadyCompleted CompleteOutcome = "already_completed"
	OutcomeRetryRequired    CompleteOutcome = "retry_required"
)

type CompleteDayInput struct {
	DayRef
	SubmissionID uuid.UUID
	// NextMonth/NextMonthDays materialize the month activated by this completion
	// when it has no days yet. They are ignored for any other month.
	NextMonth     int
	NextMonthDays []progression.DayOutline
	CompletedAt   time.Time
}

type CompleteDayResult struct {
	Outcome        CompleteOutcome
	Plan           progression.Plan
	Day            progression.Day
	Submission     progression.Submission
	MonthCompleted bool
	PlanCompleted  bool
	ActivatedMonth int
	AttemptCount   int
	// RemediationDue is set when this call recorded a failed attempt that crossed
	// the remediation threshold.
	RemediationDue bool
	Events         []progression.ProgressionEvent
}

type RegenerateQuizInput struct {
	DayRef
	Quiz          GeneratedQuiz
	RegeneratedAt time.Time
}

type RegenerateQuizResult struct {
	Quiz       progression.Quiz
	PreviousID *uuid.UUID
}

type EnsureDayMaterialsInput struct {
	DayRef
	Quiz   *GeneratedQuiz
	Lesson *progression.LessonContent
}

type EnsureDayMaterialsResult struct {
	Day         progression.Day
	Quiz        *progression.Quiz
	QuizCreated bool
	LessonSet   bool
}

type MaterializeMonthDaysInput struct {
	LearnerID uuid.UUID
	PlanID    uuid.UUID
	Month     int
	Days      []progression.DayOutline
}

type MaterializeMonthDaysResult struct {
	Month   progression.Month
	Days    []progression.Day
	Created bool
}

type ApplyRemediationInput struct {
	PlanID  uuid.UUID
	DayID   uuid.UUID
	Attempt int
	Lesson  progression.LessonContent
	At      time.Time
}

type ApplyRemediationResult struct {
	Day     progression.Day
	Applied bool
}
