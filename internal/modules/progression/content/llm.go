package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/platform/logger"
	"github.com/yungbote/progression-engine/internal/platform/openai"
)

const maxGenerateAttempts = 2

// LLMGenerator generates content through the OpenAI Responses API with strict JSON schemas.
type LLMGenerator struct {
	ai  openai.Client
	log *logger.Logger
}

func NewLLMGenerator(log *logger.Logger, ai openai.Client) *LLMGenerator {
	return &LLMGenerator{ai: ai, log: log.With("service", "LLMContentGenerator")}
}

func (g *LLMGenerator) GenerateQuiz(ctx context.Context, req QuizRequest) ([]types.Question, error) {
	count := req.Count
	if count <= 0 {
		count = 10
	}
	system := `
You write multiple-choice assessment questions for a self-paced learning plan.
Hard rules:
- Return ONLY valid JSON matching the schema.
- Every question has exactly 4 options and one correct_index in 0..3.
- Tag every question with the concept it tests.
- Explanations are 1-2 sentences and say why the answer is right.
`
	user := fmt.Sprintf(`
TOPIC: %s
QUESTION_COUNT: %d
%s
Task:
- Produce exactly QUESTION_COUNT questions about TOPIC at the learner's level.
- Mix recall, understanding and application questions.
Return JSON only.`, req.Concept, count, learnerBlock(req.Learner))

	if len(req.ProblemAreas) > 0 {
		min := req.MinCoverage
		if min <= 0 {
			min = DefaultMinCoverage
		}
		lines := make([]string, 0, len(req.ProblemAreas))
		for _, a := range req.ProblemAreas {
			lines = append(lines, "- "+a.Prompt())
		}
		user += fmt.Sprintf(`

PROBLEM_AREAS (the learner missed these before):
%s
- At least %d%% of the questions must directly test a PROBLEM_AREA concept.
- Rephrase; do not repeat the missed questions verbatim.`, strings.Join(lines, "\n"), int(min*100))
	}

	var payload struct {
		Questions []types.Question `json:"questions"`
	}
	if err := g.generate(ctx, system, user, "progression_quiz_v1", quizSchema(), &payload, func() []string {
		var errs []string
		if len(payload.Questions) < types.MinQuizQuestions {
			errs = append(errs, fmt.Sprintf("expected %d questions, got %d", count, len(payload.Questions)))
		}
		for i, q := range payload.Questions {
			if len(q.Options) != types.OptionsPerQuestion {
				errs = append(errs, fmt.Sprintf("question %d has %d options", i, len(q.Options)))
			}
		}
		return errs
	}); err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

func (g *LLMGenerator) GenerateLessonContent(ctx context.Context, req LessonRequest) (types.LessonContent, error) {
	system := `
You design a focused one-day study session.
Hard rules:
- Return ONLY valid JSON matching the schema.
- Sections add up to roughly one hour.
- Resources are general kinds of material; never invent URLs.
`
	user := fmt.Sprintf(`
CONCEPT: %s
%s
Task:
- Write an overview, 3-4 timed sections with concrete steps, resources, a checklist and learning objectives.`, req.Concept, learnerBlock(req.Learner))
	if len(req.Focus) > 0 {
		user += fmt.Sprintf(`

REMEDIATION_FOCUS (the learner keeps missing these):
- %s
- Start with a section that re-teaches each focus item from a different angle.
- Copy the focus items into remediation_focus.`, strings.Join(req.Focus, "\n- "))
	}

	var out types.LessonContent
	if err := g.generate(ctx, system, user, "progression_lesson_v1", lessonSchema(), &out, func() []string {
		if strings.TrimSpace(out.Overview) == "" || len(out.Sections) == 0 {
			return []string{"overview and sections are required"}
		}
		return nil
	}); err != nil {
		return types.LessonContent{}, err
	}
	out.Source = types.QuizSourceGenerated
	return out, nil
}

func (g *LLMGenerator) GenerateMonthDays(ctx context.Context, req MonthDaysRequest) ([]types.DayOutline, error) {
	count := req.Count
	if count <= 0 {
		count = types.DefaultDaysPerMonth
	}
	system := `
You break one month of a learning plan into daily study concepts.
Hard rules:
- Return ONLY valid JSON matching the schema.
- One concept per day, ordered so each day builds on the previous ones.
`
	user := fmt.Sprintf(`
PLAN: %s
MONTH %d: %s
DESCRIPTION: %s
GOALS: %s
TOPICS: %s
DAY_COUNT: %d
%s
Task:
- Produce exactly DAY_COUNT days with a short concept name and a time estimate in minutes.`,
		req.PlanTitle, req.MonthIndex, req.MonthTitle, req.Description,
		strings.Join(req.Goals, "; "), strings.Join(req.Topics, "; "), count, learnerBlock(req.Learner))

	var payload struct {
		Days []types.DayOutline `json:"days"`
	}
	if err := g.generate(ctx, system, user, "progression_month_days_v1", monthDaysSchema(), &payload, func() []string {
		if len(payload.Days) != count {
			return []string{fmt.Sprintf("expected %d days, got %d", count, len(payload.Days))}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return payload.Days, nil
}

// generate calls the model, decodes into out and retries once with validation feedback.
func (g *LLMGenerator) generate(ctx context.Context, system, user, schemaName string, schema map[string]any, out any, validate func() []string) error {
	var lastErrs []string
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		feedback := ""
		if len(lastErrs) > 0 {
			feedback = "\n\nVALIDATION_ERRORS_TO_FIX:\n- " + strings.Join(lastErrs, "\n- ")
		}
		obj, err := g.ai.GenerateJSON(ctx, system, user+feedback, schemaName, schema)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
			}
			lastErrs = []string{"generate_failed: " + err.Error()}
			continue
		}
		raw, _ := json.Marshal(obj)
		if err := json.Unmarshal(raw, out); err != nil {
			lastErrs = []string{"schema_unmarshal_failed"}
			continue
		}
		if errs := validate(); len(errs) > 0 {
			lastErrs = errs
			g.log.Debug("generated content failed validation", "schema", schemaName, "attempt", attempt, "errors", errs)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrUpstreamUnavailable, schemaName, strings.Join(lastErrs, "; "))
}

func learnerBlock(p types.LearnerProfile) string {
	var b strings.Builder
	b.WriteString("LEARNER:\n")
	if p.Level != "" {
		fmt.Fprintf(&b, "- level: %s\n", p.Level)
	}
	if len(p.CareerGoals) > 0 {
		fmt.Fprintf(&b, "- goals: %s\n", strings.Join(p.CareerGoals, ", "))
	}
	if len(p.CurrentSkills) > 0 {
		fmt.Fprintf(&b, "- current skills: %s\n", strings.Join(p.CurrentSkills, ", "))
	}
	if p.TimeCommitment != "" {
		fmt.Fprintf(&b, "- time commitment: %s\n", p.TimeCommitment)
	}
	return b.String()
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func quizSchema() map[string]any {
	return object(map[string]any{
		"questions": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"question":      map[string]any{"type": "string"},
				"options":       stringArray(),
				"correct_index": map[string]any{"type": "integer"},
				"explanation":   map[string]any{"type": "string"},
				"concept":       map[string]any{"type": "string"},
			}),
		},
	})
}

func lessonSchema() map[string]any {
	return object(map[string]any{
		"overview": map[string]any{"type": "string"},
		"sections": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"title":       map[string]any{"type": "string"},
				"minutes":     map[string]any{"type": "integer"},
				"steps":       stringArray(),
				"focus_areas": stringArray(),
			}),
		},
		"resources": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"type":        map[string]any{"type": "string"},
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			}),
		},
		"checklist":           stringArray(),
		"learning_objectives": stringArray(),
		"remediation_focus":   stringArray(),
	})
}

func monthDaysSchema() map[string]any {
	return object(map[string]any{
		"days": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"concept":               map[string]any{"type": "string"},
				"time_estimate_minutes": map[string]any{"type": "integer"},
			}),
		},
	})
}
