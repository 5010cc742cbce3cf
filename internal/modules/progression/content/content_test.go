package content_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
	"github.com/yungbote/progression-engine/internal/modules/progression/content/contenttest"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

func TestNormalizeQuestionsCoercesShape(t *testing.T) {
	in := []types.Question{
		{Question: "  ", Options: []string{"a", "b", "c", "d"}},
		{Question: "five options", Options: []string{"a", "b", "c", "d", "e"}, CorrectIndex: 9},
		{Question: "two options", Options: []string{"yes", "no"}, CorrectIndex: -2},
		{Question: "one option", Options: []string{"only"}},
	}
	out := content.NormalizeQuestions(in, "maps", 10)

	require.Len(t, out, types.MinQuizQuestions)
	assert.Equal(t, "five options", out[0].Question)
	assert.Len(t, out[0].Options, 4)
	assert.Equal(t, 3, out[0].CorrectIndex)
	assert.Equal(t, []string{"yes", "no", "None of the above", "None of the above"}, out[1].Options)
	assert.Equal(t, 0, out[1].CorrectIndex)
	// Untagged questions stay untagged; the day's concept is not a sub-concept.
	assert.Empty(t, out[1].Concept)
	// Padded from the fallback bank.
	assert.Contains(t, out[2].Question, "maps")
}

func TestNormalizeQuestionsTruncatesToCount(t *testing.T) {
	out := content.NormalizeQuestions(contenttest.Questions("x", 12), "x", 10)
	assert.Len(t, out, 10)
}

func TestEnsureCoverageSynthesizesTargetedQuestions(t *testing.T) {
	areas := []types.ProblemArea{
		{Concept: "slices", Question: "What does append return?", Explanation: "A possibly new slice header."},
		{Concept: "maps", Question: "Is map iteration ordered?", Explanation: "No, order is randomized."},
	}
	qs := contenttest.Questions("generics", 10)
	require.Zero(t, content.Coverage(qs, areas))

	out := content.EnsureCoverage(qs, areas, content.DefaultMinCoverage)
	require.Len(t, out, 10)
	assert.GreaterOrEqual(t, content.Coverage(out, areas), content.DefaultMinCoverage)
	// The head of the quiz is kept.
	assert.Equal(t, qs[0].Question, out[0].Question)
}

func TestCoverageIgnoresQuestionsThatOnlyMentionTheTopic(t *testing.T) {
	missed := types.Question{Question: "What does copy return?", Options: []string{"n", "0", "len(dst)", "err"}, CorrectIndex: 0}
	areas := []types.ProblemArea{{Question: missed.Question, Source: missed, Explanation: "The number of elements copied."}}

	unrelated := make([]types.Question, 0, 10)
	for i := 0; i < 10; i++ {
		q := contenttest.Questions("slices", 10)[i]
		q.Concept = ""
		unrelated = append(unrelated, q)
	}
	assert.Zero(t, content.Coverage(unrelated, areas))

	out := content.EnsureCoverage(unrelated, areas, content.DefaultMinCoverage)
	reasked := 0
	for _, q := range out {
		if q.Question == missed.Question {
			reasked++
		}
	}
	assert.GreaterOrEqual(t, reasked, 6)
	assert.Equal(t, float64(reasked)/float64(len(out)), content.Coverage(out, areas))
}

func TestResilientQuizFallsBackOnError(t *testing.T) {
	gen := &contenttest.ScriptedGenerator{Err: content.ErrUpstreamUnavailable}
	r := content.NewResilient(logger.Nop(), gen, time.Second)

	res := r.Quiz(context.Background(), content.QuizRequest{Concept: "closures", Count: 10})
	assert.Equal(t, types.QuizSourceFallback, res.Source)
	assert.GreaterOrEqual(t, len(res.Questions), types.MinQuizQuestions)
	q, _, _ := gen.Calls()
	assert.Equal(t, 1, q)
}

func TestResilientQuizTimesOut(t *testing.T) {
	gen := &contenttest.ScriptedGenerator{
		QuizFn: func(ctx context.Context, req content.QuizRequest) ([]types.Question, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := content.NewResilient(logger.Nop(), gen, 20*time.Millisecond)

	start := time.Now()
	res := r.Quiz(context.Background(), content.QuizRequest{Concept: "channels"})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, types.QuizSourceFallback, res.Source)
}

func TestResilientQuizEnforcesCoverage(t *testing.T) {
	gen := &contenttest.ScriptedGenerator{}
	r := content.NewResilient(logger.Nop(), gen, time.Second)
	areas := []types.ProblemArea{{Concept: "defer", Question: "When do deferred calls run?", Explanation: "At function return."}}

	res := r.Quiz(context.Background(), content.QuizRequest{Concept: "control flow", Count: 10, ProblemAreas: areas})
	assert.Equal(t, types.QuizSourceGenerated, res.Source)
	assert.Len(t, res.Questions, 10)
	assert.GreaterOrEqual(t, content.Coverage(res.Questions, areas), content.DefaultMinCoverage)
	assert.Equal(t, []string{"Concept: defer - At function return."}, res.ProblemFocus)
}

func TestResilientFallbackOnlyTargetedQuizHoldsCoverage(t *testing.T) {
	r := content.NewResilient(logger.Nop(), nil, time.Second)
	areas := []types.ProblemArea{
		{Concept: "pointer receivers", Question: "qa", Explanation: "ea"},
		{Concept: "embedding", Question: "qb", Explanation: "eb"},
		{Concept: "method sets", Question: "qc", Explanation: "ec"},
	}
	res := r.Quiz(context.Background(), content.QuizRequest{Concept: "types", Count: 10, ProblemAreas: areas})
	assert.Equal(t, types.QuizSourceFallback, res.Source)
	assert.Len(t, res.Questions, 5)
	assert.GreaterOrEqual(t, content.Coverage(res.Questions, areas), content.DefaultMinCoverage)
}

func TestResilientLessonAndMonthDays(t *testing.T) {
	gen := &contenttest.ScriptedGenerator{
		MonthDaysFn: func(ctx context.Context, req content.MonthDaysRequest) ([]types.DayOutline, error) {
			return []types.DayOutline{{Concept: "only one"}}, nil
		},
	}
	r := content.NewResilient(logger.Nop(), gen, time.Second)

	lesson := r.Lesson(context.Background(), content.LessonRequest{Concept: "errors", Focus: []string{"Concept: wrapping"}})
	assert.True(t, strings.HasPrefix(lesson.Overview, "Scripted lesson"))
	assert.Equal(t, []string{"Concept: wrapping"}, lesson.RemediationFocus)

	// Too few days from the generator falls back to the deterministic outline.
	days := r.MonthDays(context.Background(), content.MonthDaysRequest{MonthTitle: "Go", Topics: []string{"syntax"}, Count: 4})
	require.Len(t, days, 4)
	assert.Equal(t, "syntax - Introduction and Basics", days[0].Concept)
}

type fakeAI struct {
	responses []map[string]any
	errs      []error
	prompts   []string
}

func (f *fakeAI) GenerateJSON(_ context.Context, _ string, user string, _ string, _ map[string]any) (map[string]any, error) {
	f.prompts = append(f.prompts, user)
	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("no scripted response")
}

func (f *fakeAI) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("unused")
}

func TestLLMGeneratorRetriesWithValidationFeedback(t *testing.T) {
	good := map[string]any{"questions": []any{
		map[string]any{"question": "q1", "options": []any{"a", "b", "c", "d"}, "correct_index": 1, "explanation": "e", "concept": "c"},
		map[string]any{"question": "q2", "options": []any{"a", "b", "c", "d"}, "correct_index": 0, "explanation": "e", "concept": "c"},
		map[string]any{"question": "q3", "options": []any{"a", "b", "c", "d"}, "correct_index": 2, "explanation": "e", "concept": "c"},
	}}
	ai := &fakeAI{responses: []map[string]any{{"questions": []any{}}, good}}
	g := content.NewLLMGenerator(logger.Nop(), ai)

	qs, err := g.GenerateQuiz(context.Background(), content.QuizRequest{
		Concept:      "interfaces",
		Count:        3,
		ProblemAreas: []types.ProblemArea{{Concept: "nil interfaces", Explanation: "typed nil is not nil"}},
	})
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, 1, qs[0].CorrectIndex)
	require.Len(t, ai.prompts, 2)
	assert.Contains(t, ai.prompts[0], "Concept: nil interfaces - typed nil is not nil")
	assert.Contains(t, ai.prompts[1], "VALIDATION_ERRORS_TO_FIX")
}

func TestLLMGeneratorReportsUpstreamUnavailable(t *testing.T) {
	ai := &fakeAI{errs: []error{errors.New("boom"), errors.New("boom")}}
	g := content.NewLLMGenerator(logger.Nop(), ai)

	_, err := g.GenerateLessonContent(context.Background(), content.LessonRequest{Concept: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, content.ErrUpstreamUnavailable)
}
