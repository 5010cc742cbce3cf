package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionResult struct {
	QuestionIndex int    `json:"question_index"`
	Question      string `json:"question"`
	UserAnswer    int    `json:"user_answer"`
	CorrectAnswer int    `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
	Concept       string `json:"concept,omitempty"`
}

// Submission is an append-only graded attempt. (DayID, AttemptNumber) is unique.
type Submission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID    uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"learner_id"`
	DayID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progression_submission_day_attempt,priority:1" json:"day_id"`
	QuizID    uuid.UUID `gorm:"type:uuid;not null;index" json:"quiz_id"`

	MonthIndex    int `gorm:"column:month_index;not null" json:"month"`
	DayIndex      int `gorm:"column:day_index;not null" json:"day"`
	AttemptNumber int `gorm:"column:attempt_number;not null;uniqueIndex:idx_progression_submission_day_attempt,priority:2" json:"attempt_number"`

	Answers      datatypes.JSONSlice[int]            `gorm:"column:answers;not null" json:"answers"`
	Results      datatypes.JSONSlice[QuestionResult] `gorm:"column:question_results;not null" json:"question_results"`
	CorrectCount int                                 `gorm:"column:correct_count;not null" json:"correct_count"`
	Total        int                                 `gorm:"column:total;not null" json:"total"`
	Score        int                                 `gorm:"column:score;not null" json:"score"`
	Threshold    int                                 `gorm:"column:threshold;not null" json:"threshold"`
	Passed       bool                                `gorm:"column:passed;not null;index" json:"passed"`

	TimeTakenSeconds *int      `gorm:"column:time_taken_seconds" json:"time_taken_seconds,omitempty"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
}

func (Submission) TableName() string { return "progression_submission" }

// MissedConcepts lists the distinct concepts (or question texts when no concept
// is tagged) of incorrectly answered questions, in question order.
func (s *Submission) MissedConcepts() []string {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	out := []string{}
	for _, r := range s.Results {
		if r.IsCorrect {
			continue
		}
		key := r.Concept
		if key == "" {
			key = r.Question
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
