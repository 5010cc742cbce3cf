package contenttest

import (
	"context"
	"fmt"
	"sync"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
)

// ScriptedGenerator is a content.Generator for tests. Unset funcs fall back to
// deterministic answers; Err forces every call to fail.
type ScriptedGenerator struct {
	mu sync.Mutex

	QuizFn      func(ctx context.Context, req content.QuizRequest) ([]types.Question, error)
	LessonFn    func(ctx context.Context, req content.LessonRequest) (types.LessonContent, error)
	MonthDaysFn func(ctx context.Context, req content.MonthDaysRequest) ([]types.DayOutline, error)
	Err         error

	QuizRequests      []content.QuizRequest
	LessonRequests    []content.LessonRequest
	MonthDaysRequests []content.MonthDaysRequest
}

func (g *ScriptedGenerator) GenerateQuiz(ctx context.Context, req content.QuizRequest) ([]types.Question, error) {
	g.mu.Lock()
	g.QuizRequests = append(g.QuizRequests, req)
	fn, err := g.QuizFn, g.Err
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return Questions(req.Concept, req.Count), nil
}

func (g *ScriptedGenerator) GenerateLessonContent(ctx context.Context, req content.LessonRequest) (types.LessonContent, error) {
	g.mu.Lock()
	g.LessonRequests = append(g.LessonRequests, req)
	fn, err := g.LessonFn, g.Err
	g.mu.Unlock()
	if err != nil {
		return types.LessonContent{}, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return types.LessonContent{
		Overview:         "Scripted lesson on " + req.Concept,
		Sections:         []types.LessonSection{{Title: "Study", Minutes: 60, Steps: []string{"read"}}},
		RemediationFocus: req.Focus,
		Source:           types.QuizSourceGenerated,
	}, nil
}

func (g *ScriptedGenerator) GenerateMonthDays(ctx context.Context, req content.MonthDaysRequest) ([]types.DayOutline, error) {
	g.mu.Lock()
	g.MonthDaysRequests = append(g.MonthDaysRequests, req)
	fn, err := g.MonthDaysFn, g.Err
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	out := make([]types.DayOutline, 0, req.Count)
	for i := 1; i <= req.Count; i++ {
		out = append(out, types.DayOutline{Concept: fmt.Sprintf("%s day %d", req.MonthTitle, i), TimeEstimateMinutes: 45})
	}
	return out, nil
}

func (g *ScriptedGenerator) Calls() (quiz, lesson, monthDays int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.QuizRequests), len(g.LessonRequests), len(g.MonthDaysRequests)
}

// Questions builds count questions whose correct answer is always option 0.
func Questions(concept string, count int) []types.Question {
	if count <= 0 {
		count = 10
	}
	out := make([]types.Question, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, types.Question{
			Question:     fmt.Sprintf("%s question %d", concept, i+1),
			Options:      []string{"right", "wrong a", "wrong b", "wrong c"},
			CorrectIndex: 0,
			Explanation:  fmt.Sprintf("explanation %d", i+1),
			Concept:      fmt.Sprintf("%s/sub%d", concept, i%3),
		})
	}
	return out
}

// Answers returns count answers to Questions with the first correct of them right.
func Answers(count, correct int) []int {
	out := make([]int, count)
	for i := range out {
		if i >= correct {
			out[i] = 1
		}
	}
	return out
}
