package progression

import (
	"math"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// DayAddress names a day of a learner's plan. ExpectedVersion, when set, must
// match the plan's version at write time.
type DayAddress struct {
	LearnerID       uuid.UUID
	PlanID          uuid.UUID
	Month           int
	Day             int
	ExpectedVersion *int
}

func (a DayAddress) ref() domainagg.DayRef {
	return domainagg.DayRef{
		LearnerID:       a.LearnerID,
		PlanID:          a.PlanID,
		Month:           a.Month,
		Day:             a.Day,
		ExpectedVersion: a.ExpectedVersion,
	}
}

func (a DayAddress) validate(op string) error {
	switch {
	case a.LearnerID == uuid.Nil:
		return invalid(op, "missing learner_id")
	case a.PlanID == uuid.Nil:
		return invalid(op, "missing plan_id")
	case a.Month < 1:
		return invalid(op, "month must be >= 1")
	case a.Day < 1:
		return invalid(op, "day must be >= 1")
	}
	return nil
}

type DayStatus string

const (
	DayLocked     DayStatus = "locked"
	DayAvailable  DayStatus = "available"
	DayInProgress DayStatus = "in_progress"
	DayCompleted  DayStatus = "completed"
)

// deriveDayStatus computes a day's status from the ledger. prevPassed is true
// for the first day of a month.
func deriveDayStatus(month *types.Month, day *types.Day, passed, prevPassed bool) DayStatus {
	switch {
	case passed:
		return DayCompleted
	case month == nil || month.IsLocked():
		return DayLocked
	case !prevPassed:
		return DayLocked
	case day.Started():
		return DayInProgress
	default:
		return DayAvailable
	}
}

type QuizStatusKind string

const (
	QuizNotGenerated QuizStatusKind = "not_generated"
	QuizReady        QuizStatusKind = "ready"
	QuizCompleted    QuizStatusKind = "completed"
	QuizFailed       QuizStatusKind = "failed"
)

type QuizStatus struct {
	Status         QuizStatusKind `json:"status"`
	QuizID         *uuid.UUID     `json:"quiz_id,omitempty"`
	Attempts       int            `json:"attempts"`
	BestScore      *int           `json:"best_score,omitempty"`
	LastScore      *int           `json:"last_attempt_score,omitempty"`
	RequiredScore  int            `json:"required_score"`
	TotalQuestions int            `json:"total_questions"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// QuizView is a quiz without its answer key.
type QuizView struct {
	ID            uuid.UUID              `json:"id"`
	Title         string                 `json:"title"`
	Month         int                    `json:"month"`
	Day           int                    `json:"day"`
	Questions     []types.PublicQuestion `json:"questions"`
	RequiredScore int                    `json:"required_score"`
	IsRetake      bool                   `json:"is_retake"`
	ProblemFocus  []string               `json:"problem_focus,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func NewQuizView(q *types.Quiz) *QuizView {
	if q == nil {
		return nil
	}
	return &QuizView{
		ID:            q.ID,
		Title:         q.Title,
		Month:         q.MonthIndex,
		Day:           q.DayIndex,
		Questions:     q.PublicQuestions(),
		RequiredScore: q.RequiredScore,
		IsRetake:      q.IsRetake,
		ProblemFocus:  append([]string(nil), q.ProblemFocus...),
		CreatedAt:     q.CreatedAt,
	}
}

type DaySummary struct {
	ID                  uuid.UUID  `json:"id"`
	Month               int        `json:"month"`
	Day                 int        `json:"day"`
	Concept             string     `json:"concept"`
	TimeEstimateMinutes int        `json:"time_estimate_minutes"`
	Threshold           int        `json:"threshold"`
	Status              DayStatus  `json:"status"`
	BestScore           *int       `json:"best_score,omitempty"`
	AttemptCount        int        `json:"attempt_count"`
	HasQuiz             bool       `json:"has_quiz"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func summarizeDay(month *types.Month, d *types.Day, passed, prevPassed bool) DaySummary {
	return DaySummary{
		ID:                  d.ID,
		Month:               d.MonthIndex,
		Day:                 d.Index,
		Concept:             d.Concept,
		TimeEstimateMinutes: d.TimeEstimateMinutes,
		Threshold:           d.EffectiveThreshold(),
		Status:              deriveDayStatus(month, d, passed, prevPassed),
		BestScore:           d.BestScore,
		AttemptCount:        d.AttemptCount,
		HasQuiz:             d.CurrentQuizID != nil,
		StartedAt:           d.StartedAt,
		CompletedAt:         d.CompletedAt,
	}
}

// summarizeMonthDays derives every day's status in curriculum order.
func summarizeMonthDays(month *types.Month, days []*types.Day, passed map[uuid.UUID]bool) []DaySummary {
	out := make([]DaySummary, 0, len(days))
	prevPassed := true
	for _, d := range days {
		ok := passed[d.ID]
		out = append(out, summarizeDay(month, d, ok, prevPassed))
		prevPassed = ok
	}
	return out
}

type DayView struct {
	PlanID     uuid.UUID            `json:"plan_id"`
	MonthTitle string               `json:"month_title"`
	Day        DaySummary           `json:"day"`
	Lesson     *types.LessonContent `json:"lesson,omitempty"`
	Revision   int                  `json:"content_revision"`
	Quiz       *QuizView            `json:"quiz,omitempty"`
	QuizStatus QuizStatus           `json:"quiz_status"`
}

type MonthDaysView struct {
	PlanID uuid.UUID    `json:"plan_id"`
	Month  types.Month  `json:"month"`
	Days   []DaySummary `json:"days"`
}

type MonthProgress struct {
	Index         int               `json:"month"`
	Title         string            `json:"title"`
	Status        types.MonthStatus `json:"status"`
	DaysCompleted int               `json:"days_completed"`
	DaysTotal     int               `json:"days_total"`
	Percent       float64           `json:"percent"`
}

type ProgressSummary struct {
	PlanID         uuid.UUID       `json:"plan_id"`
	DaysCompleted  int             `json:"days_completed"`
	DaysTotal      int             `json:"days_total"`
	Percent        float64         `json:"percent"`
	MonthsComplete int             `json:"months_completed"`
	Months         []MonthProgress `json:"months"`
	TotalAttempts  int             `json:"total_attempts"`
	PassedAttempts int             `json:"passed_attempts"`
	AverageScore   float64         `json:"average_score"`
	PassRate       float64         `json:"pass_rate"`
}

type PlanSummary struct {
	Plan          types.Plan `json:"plan"`
	ActiveMonth   int        `json:"active_month"`
	DaysCompleted int        `json:"days_completed"`
	DaysTotal     int        `json:"days_total"`
	Percent       float64    `json:"percent"`
}

type MonthSnapshot struct {
	Month         types.Month  `json:"month"`
	DaysCompleted int          `json:"days_completed"`
	Days          []DaySummary `json:"days"`
}

// PlanSnapshot is the whole curriculum with derived statuses.
type PlanSnapshot struct {
	Plan   types.Plan      `json:"plan"`
	Months []MonthSnapshot `json:"months"`
	Cursor *Cursor         `json:"cursor,omitempty"`
}

type QuizSummary struct {
	QuizID         uuid.UUID  `json:"quiz_id"`
	Title          string     `json:"title"`
	Month          int        `json:"month"`
	MonthTitle     string     `json:"month_title"`
	Day            int        `json:"day"`
	Concept        string     `json:"concept"`
	RequiredScore  int        `json:"required_score"`
	TotalQuestions int        `json:"total_questions"`
	IsRetake       bool       `json:"is_retake"`
	Completed      bool       `json:"completed"`
	BestScore      *int       `json:"best_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type QuizList struct {
	Quizzes   []QuizSummary `json:"quizzes"`
	Total     int           `json:"total_quizzes"`
	Completed int           `json:"completed_quizzes"`
	Pending   int           `json:"pending_quizzes"`
}

// percent is 100*part/whole rounded to one decimal.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(1000*float64(part)/float64(whole)) / 10
}
