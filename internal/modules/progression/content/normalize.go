package content

import (
	"strings"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// NormalizeQuestions coerces generated questions into the quiz shape: empty
// questions are dropped, options are padded or truncated to four, and
// correct_index is clamped. The result is truncated to count and padded with
// fallback questions up to the minimum.
func NormalizeQuestions(in []types.Question, concept string, count int) []types.Question {
	out := make([]types.Question, 0, len(in))
	for _, q := range in {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		opts := make([]string, 0, types.OptionsPerQuestion)
		for _, o := range q.Options {
			if o = strings.TrimSpace(o); o != "" {
				opts = append(opts, o)
			}
			if len(opts) == types.OptionsPerQuestion {
				break
			}
		}
		if len(opts) < 2 {
			continue
		}
		for len(opts) < types.OptionsPerQuestion {
			opts = append(opts, "None of the above")
		}
		q.Options = opts
		if q.CorrectIndex < 0 {
			q.CorrectIndex = 0
		}
		if q.CorrectIndex >= types.OptionsPerQuestion {
			q.CorrectIndex = types.OptionsPerQuestion - 1
		}
		q.Explanation = strings.TrimSpace(q.Explanation)
		q.Concept = strings.TrimSpace(q.Concept)
		out = append(out, q)
	}
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	if len(out) < types.MinQuizQuestions {
		for _, q := range types.FallbackQuiz(concept, types.MinQuizQuestions+len(out)) {
			if len(out) >= types.MinQuizQuestions {
				break
			}
			if !containsQuestion(out, q.Question) {
				out = append(out, q)
			}
		}
	}
	return out
}

func NormalizeDayOutlines(in []types.DayOutline, count int) []types.DayOutline {
	out := make([]types.DayOutline, 0, len(in))
	for _, d := range in {
		d = d.Normalize()
		if d.Concept == "" {
			continue
		}
		out = append(out, d)
	}
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out
}

func containsQuestion(qs []types.Question, text string) bool {
	for _, q := range qs {
		if strings.EqualFold(q.Question, text) {
			return true
		}
	}
	return false
}
