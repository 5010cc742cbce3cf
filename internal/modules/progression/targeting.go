package progression

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// ProblemAreas ranks the questions a learner got wrong across every submission
// for a day, most-missed first; ties keep first-seen order. At most limit areas
// are returned. quizzes supplies the original question so retakes can re-ask it.
// A question tagged only with dayConcept gets no area concept: every question of
// the day is about dayConcept, so it would match anything.
func ProblemAreas(subs []*types.Submission, quizzes map[uuid.UUID]*types.Quiz, dayConcept string, limit int) []types.ProblemArea {
	dayConcept = strings.TrimSpace(dayConcept)
	type tally struct {
		area  types.ProblemArea
		first int
	}
	byKey := map[string]*tally{}
	order := 0
	for _, s := range subs {
		if s == nil {
			continue
		}
		quiz := quizzes[s.QuizID]
		for _, r := range s.Results {
			if r.IsCorrect {
				continue
			}
			key := strings.TrimSpace(r.Question)
			if key == "" {
				continue
			}
			t := byKey[key]
			if t == nil {
				concept := strings.TrimSpace(r.Concept)
				if dayConcept != "" && strings.EqualFold(concept, dayConcept) {
					concept = ""
				}
				t = &tally{
					area: types.ProblemArea{
						Concept:     concept,
						Question:    key,
						Explanation: strings.TrimSpace(r.Explanation),
					},
					first: order,
				}
				if quiz != nil && r.QuestionIndex >= 0 && r.QuestionIndex < len(quiz.Questions) {
					t.area.Source = quiz.Questions[r.QuestionIndex]
				}
				byKey[key] = t
				order++
			}
			t.area.Misses++
		}
	}

	all := make([]*tally, 0, len(byKey))
	for _, t := range byKey {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].area.Misses != all[j].area.Misses {
			return all[i].area.Misses > all[j].area.Misses
		}
		return all[i].first < all[j].first
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]types.ProblemArea, 0, len(all))
	for _, t := range all {
		out = append(out, t.area)
	}
	return out
}

// FocusPrompts renders areas as "Concept: X - explanation" lines.
func FocusPrompts(areas []types.ProblemArea) []string {
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		out = append(out, a.Prompt())
	}
	return out
}
