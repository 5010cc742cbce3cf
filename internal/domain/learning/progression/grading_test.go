package progression

import (
	"errors"
	"testing"
)

func tenQuestions() []Question {
	qs := make([]Question, 10)
	for i := range qs {
		qs[i] = Question{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectIndex: i % 4}
	}
	return qs
}

func answersWithCorrect(qs []Question, correct int) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		if i < correct {
			out[i] = q.CorrectIndex
		} else {
			out[i] = (q.CorrectIndex + 1) % 4
		}
	}
	return out
}

func TestGradeScoresAndThreshold(t *testing.T) {
	qs := tenQuestions()
	cases := []struct {
		correct int
		score   int
		passed  bool
	}{
		{correct: 6, score: 60, passed: false},
		{correct: 7, score: 70, passed: true},
		{correct: 10, score: 100, passed: true},
		{correct: 0, score: 0, passed: false},
	}
	for _, tc := range cases {
		res, err := Grade(qs, answersWithCorrect(qs, tc.correct), 70)
		if err != nil {
			t.Fatalf("grade %d: %v", tc.correct, err)
		}
		if res.Score != tc.score || res.Passed != tc.passed || res.Correct != tc.correct {
			t.Fatalf("grade %d: got score=%d passed=%v correct=%d", tc.correct, res.Score, res.Passed, res.Correct)
		}
		if len(res.Results) != len(qs) {
			t.Fatalf("results: want=%d got=%d", len(qs), len(res.Results))
		}
	}
}

func TestScorePercentRoundsHalfAwayFromZero(t *testing.T) {
	if got := ScorePercent(1, 8); got != 13 {
		t.Fatalf("1/8: want=13 got=%d", got)
	}
	if got := ScorePercent(2, 3); got != 67 {
		t.Fatalf("2/3: want=67 got=%d", got)
	}
	if got := ScorePercent(1, 3); got != 33 {
		t.Fatalf("1/3: want=33 got=%d", got)
	}
	if got := ScorePercent(0, 0); got != 0 {
		t.Fatalf("0/0: want=0 got=%d", got)
	}
}

func TestGradeRejectsMalformedAnswers(t *testing.T) {
	qs := tenQuestions()
	if _, err := Grade(qs, make([]int, 9), 70); !errors.Is(err, ErrInvalidAnswers) {
		t.Fatalf("short answers: expected ErrInvalidAnswers, got %v", err)
	}
	bad := make([]int, 10)
	bad[3] = 4
	if _, err := Grade(qs, bad, 70); !errors.Is(err, ErrInvalidAnswers) {
		t.Fatalf("out of range: expected ErrInvalidAnswers, got %v", err)
	}
	bad[3] = -1
	if _, err := Grade(qs, bad, 70); !errors.Is(err, ErrInvalidAnswers) {
		t.Fatalf("negative: expected ErrInvalidAnswers, got %v", err)
	}
}

func TestFallbackQuizBounds(t *testing.T) {
	if got := len(FallbackQuiz("Loops", 1)); got != MinQuizQuestions {
		t.Fatalf("min: want=%d got=%d", MinQuizQuestions, got)
	}
	for _, q := range FallbackQuiz("Loops", 10) {
		if len(q.Options) != OptionsPerQuestion || q.CorrectIndex < 0 || q.CorrectIndex > 3 {
			t.Fatalf("malformed fallback question: %+v", q)
		}
	}
}

func TestFallbackDayOutlinesCycleTopics(t *testing.T) {
	days := FallbackDayOutlines("Month", []string{"Go", "SQL"}, 30)
	if len(days) != 30 {
		t.Fatalf("count: want=30 got=%d", len(days))
	}
	if days[0].Concept != "Go - Introduction and Basics" || days[1].Concept != "SQL - Deep Dive and Theory" {
		t.Fatalf("unexpected concepts: %q %q", days[0].Concept, days[1].Concept)
	}
}

func TestProblemAreaPrompt(t *testing.T) {
	p := ProblemArea{Concept: "Closures", Explanation: "capture variables by reference"}
	if got := p.Prompt(); got != "Concept: Closures - capture variables by reference" {
		t.Fatalf("prompt: %q", got)
	}
}
