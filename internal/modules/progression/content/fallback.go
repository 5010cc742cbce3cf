package content

import (
	"context"
	"math"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// Fallback is the deterministic generator used when no model is configured
// and whenever the primary generator fails. It never returns an error.
type Fallback struct{}

func (Fallback) GenerateLessonContent(_ context.Context, req LessonRequest) (types.LessonContent, error) {
	return types.FallbackLesson(req.Concept, req.Focus), nil
}

func (Fallback) GenerateQuiz(_ context.Context, req QuizRequest) ([]types.Question, error) {
	if len(req.ProblemAreas) > 0 {
		count := req.Count
		if req.MinCoverage > 0 {
			// Keep generic padding small enough that targeted questions hold the coverage ratio.
			limit := int(math.Floor(float64(len(req.ProblemAreas))/req.MinCoverage + 1e-9))
			if limit < types.MinQuizQuestions {
				limit = types.MinQuizQuestions
			}
			if count <= 0 || count > limit {
				count = limit
			}
		}
		return types.FallbackTargetedQuiz(req.Concept, req.ProblemAreas, count), nil
	}
	return types.FallbackQuiz(req.Concept, req.Count), nil
}

func (Fallback) GenerateMonthDays(_ context.Context, req MonthDaysRequest) ([]types.DayOutline, error) {
	return types.FallbackDayOutlines(req.MonthTitle, req.Topics, req.Count), nil
}
