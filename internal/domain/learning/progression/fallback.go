package progression

import (
	"fmt"
	"strings"
)

// ProblemArea is a question the learner repeatedly missed on a Day.
type ProblemArea struct {
	Concept     string   `json:"concept"`
	Question    string   `json:"question"`
	Explanation string   `json:"explanation"`
	Misses      int      `json:"misses"`
	Source      Question `json:"-"`
}

// Prompt renders the area the way generators receive it: "Concept: X - explanation".
func (p ProblemArea) Prompt() string {
	concept := strings.TrimSpace(p.Concept)
	if concept == "" {
		concept = strings.TrimSpace(p.Question)
	}
	expl := strings.TrimSpace(p.Explanation)
	if expl == "" {
		return "Concept: " + concept
	}
	return "Concept: " + concept + " - " + expl
}

var fallbackSegments = []string{
	"Introduction and Basics",
	"Deep Dive and Theory",
	"Practical Examples",
	"Hands-on Practice",
	"Real-world Application",
}

// FallbackDayOutlines builds count deterministic outlines by cycling the month's
// topics against a fixed set of study segments.
func FallbackDayOutlines(title string, topics []string, count int) []DayOutline {
	if count <= 0 {
		count = DefaultDaysPerMonth
	}
	pool := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		title = strings.TrimSpace(title)
		if title == "" {
			title = "Core topic"
		}
		pool = []string{title}
	}
	out := make([]DayOutline, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, DayOutline{
			Concept:             pool[i%len(pool)] + " - " + fallbackSegments[i%len(fallbackSegments)],
			TimeEstimateMinutes: 60,
			Threshold:           DefaultThreshold,
		})
	}
	return out
}

func genericQuestions(concept string) []Question {
	return []Question{
		{
			Question:     fmt.Sprintf("What is the main focus of today's learning: %s?", concept),
			Options:      []string{"Understanding " + concept, "Memorizing facts", "Taking notes", "None of the above"},
			CorrectIndex: 0,
			Explanation:  fmt.Sprintf("The main focus is understanding %s thoroughly.", concept),
		},
		{
			Question:     fmt.Sprintf("Which approach is best for learning %s?", concept),
			Options:      []string{"Active practice and application", "Passive reading only", "Skipping difficult parts", "Rushing through quickly"},
			CorrectIndex: 0,
			Explanation:  "Active practice and application is the most effective learning method.",
		},
		{
			Question:     fmt.Sprintf("When studying %s, what should you do first?", concept),
			Options:      []string{"Understand the fundamentals", "Jump to advanced topics", "Skip the basics", "Memorize without understanding"},
			CorrectIndex: 0,
			Explanation:  "Always start with understanding the fundamentals.",
		},
		{
			Question:     fmt.Sprintf("How can you check that you really understand %s?", concept),
			Options:      []string{"Re-read the notes once", "Explain it and apply it to a new problem", "Count the pages read", "Watch another video"},
			CorrectIndex: 1,
			Explanation:  "Explaining a concept and applying it to unfamiliar problems exposes gaps in understanding.",
		},
		{
			Question:     fmt.Sprintf("What should you do after making a mistake while practicing %s?", concept),
			Options:      []string{"Ignore it", "Start a different topic", "Find the cause and practice that part again", "Memorize the correct answer"},
			CorrectIndex: 2,
			Explanation:  "Tracing a mistake to its cause and practicing that part turns errors into progress.",
		},
	}
}

// FallbackQuiz returns deterministic generic questions about concept:
// at least MinQuizQuestions and at most as many templates as exist.
func FallbackQuiz(concept string, count int) []Question {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		concept = "Learning Assessment"
	}
	all := genericQuestions(concept)
	if count < MinQuizQuestions {
		count = MinQuizQuestions
	}
	if count > len(all) {
		count = len(all)
	}
	return all[:count]
}

// TargetedQuestion re-asks a missed question, tagged with its concept.
func TargetedQuestion(area ProblemArea) Question {
	q := area.Source
	if strings.TrimSpace(q.Question) == "" {
		q.Question = area.Question
	}
	if len(q.Options) != OptionsPerQuestion {
		concept := area.Concept
		if concept == "" {
			concept = area.Question
		}
		return Question{
			Question:     fmt.Sprintf("Which statement about %s is correct?", concept),
			Options:      []string{strings.TrimSpace(area.Explanation), "It is unrelated to this lesson", "It only applies to edge cases", "None of the above"},
			CorrectIndex: 0,
			Explanation:  area.Explanation,
			Concept:      concept,
		}
	}
	q.Options = append([]string(nil), q.Options...)
	if strings.TrimSpace(q.Explanation) == "" {
		q.Explanation = area.Explanation
	}
	if q.Concept == "" {
		q.Concept = area.Concept
	}
	return q
}

// FallbackTargetedQuiz re-asks every problem area and pads with generic questions.
func FallbackTargetedQuiz(concept string, areas []ProblemArea, count int) []Question {
	out := make([]Question, 0, count)
	for _, a := range areas {
		out = append(out, TargetedQuestion(a))
	}
	for _, q := range FallbackQuiz(concept, count-len(out)) {
		if len(out) >= count && len(out) >= MinQuizQuestions {
			break
		}
		out = append(out, q)
	}
	return out
}

// FallbackLesson is the deterministic study plan used when generation fails.
func FallbackLesson(concept string, focus []string) LessonContent {
	concept = strings.TrimSpace(concept)
	out := LessonContent{
		Overview: "Comprehensive study session focused on " + concept,
		Sections: []LessonSection{
			{Title: "Theory and Concepts", Minutes: 25, Steps: []string{"Read core concepts", "Take detailed notes", "Identify key principles"}, FocusAreas: []string{"Fundamentals", "Core theory"}},
			{Title: "Practical Application", Minutes: 25, Steps: []string{"Work through examples", "Practice problems", "Apply concepts"}, FocusAreas: []string{"Hands-on practice", "Problem solving"}},
			{Title: "Review and Assessment", Minutes: 10, Steps: []string{"Summarize learning", "Self-assessment", "Prepare for quiz"}, FocusAreas: []string{"Consolidation", "Understanding check"}},
		},
		Resources: []LessonResource{
			{Type: "documentation", Title: "Core Concepts Guide", Description: "Essential reading for today's topic"},
		},
		Checklist:          []string{"Complete theory reading", "Finish practice exercises", "Review key concepts", "Prepare for assessment"},
		LearningObjectives: []string{"Understand core concepts", "Apply knowledge practically", "Demonstrate comprehension"},
		Source:             QuizSourceFallback,
	}
	if len(focus) > 0 {
		out.RemediationFocus = append([]string(nil), focus...)
		out.Sections = append([]LessonSection{{
			Title:      "Targeted Review",
			Minutes:    20,
			Steps:      []string{"Revisit the questions you missed", "Work one new example per concept", "Explain each concept in your own words"},
			FocusAreas: append([]string(nil), focus...),
		}}, out.Sections...)
	}
	return out
}
