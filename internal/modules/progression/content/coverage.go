package content

import (
	"math"
	"strings"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// DefaultMinCoverage is the share of a retake quiz that must address problem areas.
const DefaultMinCoverage = 0.6

// Targets reports whether q re-asks a missed question or is tagged with a
// missed sub-concept. Areas carry no concept when the missed question was only
// tagged with the day's own concept, so matching falls back to the question.
func Targets(q types.Question, areas []types.ProblemArea) bool {
	text := strings.TrimSpace(q.Question)
	concept := strings.TrimSpace(q.Concept)
	for _, a := range areas {
		if text != "" && (strings.EqualFold(text, strings.TrimSpace(a.Question)) ||
			strings.EqualFold(text, strings.TrimSpace(a.Source.Question))) {
			return true
		}
		if concept == "" {
			continue
		}
		if ac := strings.TrimSpace(a.Concept); ac != "" {
			if strings.EqualFold(concept, ac) {
				return true
			}
		} else if strings.EqualFold(concept, strings.TrimSpace(a.Question)) {
			return true
		}
	}
	return false
}

// Coverage is the fraction of questions that target a problem area.
func Coverage(qs []types.Question, areas []types.ProblemArea) float64 {
	if len(qs) == 0 || len(areas) == 0 {
		return 0
	}
	n := 0
	for _, q := range qs {
		if Targets(q, areas) {
			n++
		}
	}
	return float64(n) / float64(len(qs))
}

// EnsureCoverage replaces untargeted questions, last first, with questions
// synthesized from the problem areas until coverage reaches min.
func EnsureCoverage(qs []types.Question, areas []types.ProblemArea, min float64) []types.Question {
	if len(areas) == 0 || min <= 0 {
		return qs
	}
	out := append([]types.Question(nil), qs...)
	need := int(math.Ceil(min * float64(len(out))))
	have := 0
	for _, q := range out {
		if Targets(q, areas) {
			have++
		}
	}
	next := 0
	for i := len(out) - 1; i >= 0 && have < need; i-- {
		if Targets(out[i], areas) {
			continue
		}
		out[i] = types.TargetedQuestion(areas[next%len(areas)])
		next++
		have++
	}
	return out
}
