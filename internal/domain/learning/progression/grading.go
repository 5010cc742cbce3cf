package progression

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidAnswers = errors.New("invalid answers")

type GradeResult struct {
	Results   []QuestionResult
	Correct   int
	Total     int
	Score     int
	Threshold int
	Passed    bool
}

// ScorePercent is round(100*correct/total), rounding halves away from zero.
func ScorePercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(100*correct) / float64(total)))
}

func Passed(score, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return score >= threshold
}

// Grade scores answers against questions. It requires one answer per question,
// each a valid option index.
func Grade(questions []Question, answers []int, threshold int) (GradeResult, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(questions) == 0 {
		return GradeResult{}, fmt.Errorf("%w: quiz has no questions", ErrInvalidAnswers)
	}
	if len(answers) != len(questions) {
		return GradeResult{}, fmt.Errorf("%w: expected %d answers, got %d", ErrInvalidAnswers, len(questions), len(answers))
	}
	for i, a := range answers {
		if a < 0 || a >= OptionsPerQuestion {
			return GradeResult{}, fmt.Errorf("%w: answer %d out of range: %d", ErrInvalidAnswers, i, a)
		}
	}

	out := GradeResult{
		Results:   make([]QuestionResult, 0, len(questions)),
		Total:     len(questions),
		Threshold: threshold,
	}
	for i, q := range questions {
		correct := answers[i] == q.CorrectIndex
		if correct {
			out.Correct++
		}
		out.Results = append(out.Results, QuestionResult{
			QuestionIndex: i,
			Question:      q.Question,
			UserAnswer:    answers[i],
			CorrectAnswer: q.CorrectIndex,
			IsCorrect:     correct,
			Explanation:   q.Explanation,
			Concept:       q.Concept,
		})
	}
	out.Score = ScorePercent(out.Correct, out.Total)
	out.Passed = Passed(out.Score, threshold)
	return out, nil
}
