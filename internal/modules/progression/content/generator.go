package content

import (
	"context"
	"errors"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// ErrUpstreamUnavailable marks a generator failure that callers absorb with a fallback.
var ErrUpstreamUnavailable = errors.New("content generator unavailable")

// Generator produces study material. Implementations may be slow or fail;
// the engine only talks to them through Resilient.
type Generator interface {
	GenerateLessonContent(ctx context.Context, req LessonRequest) (types.LessonContent, error)
	GenerateQuiz(ctx context.Context, req QuizRequest) ([]types.Question, error)
	GenerateMonthDays(ctx context.Context, req MonthDaysRequest) ([]types.DayOutline, error)
}

type LessonRequest struct {
	Concept string
	Learner types.LearnerProfile
	// Focus lists "Concept: X - explanation" prompts for remediation lessons.
	Focus []string
}

type QuizRequest struct {
	Concept      string
	Learner      types.LearnerProfile
	Count        int
	ProblemAreas []types.ProblemArea
	// MinCoverage is the share of questions that must target ProblemAreas.
	MinCoverage float64
}

type MonthDaysRequest struct {
	PlanTitle   string
	MonthIndex  int
	MonthTitle  string
	Description string
	Goals       []string
	Topics      []string
	Learner     types.LearnerProfile
	Count       int
}
