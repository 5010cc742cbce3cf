package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	OptionsPerQuestion = 4
	MinQuizQuestions   = 3
)

const (
	QuizSourceGenerated = "generated"
	QuizSourceFallback  = "fallback"
)

type Question struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Concept      string   `json:"concept,omitempty"`
}

// Quiz rows are immutable. Regeneration inserts a new row, moves
// Day.CurrentQuizID and stamps SupersededAt on the previous one.
type Quiz struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID     uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	DayID      uuid.UUID `gorm:"type:uuid;not null;index" json:"day_id"`
	MonthIndex int       `gorm:"column:month_index;not null" json:"month"`
	DayIndex   int       `gorm:"column:day_index;not null" json:"day"`

	Title         string                        `gorm:"column:title;type:text;not null" json:"title"`
	Questions     datatypes.JSONSlice[Question] `gorm:"column:questions;not null" json:"questions"`
	RequiredScore int                           `gorm:"column:required_score;not null;default:70" json:"required_score"`
	ProblemFocus  datatypes.JSONSlice[string]   `gorm:"column:problem_focus" json:"problem_focus,omitempty"`
	IsRetake      bool                          `gorm:"column:is_retake;not null;default:false" json:"is_retake"`
	Source        string                        `gorm:"column:source;type:text;not null;default:'generated'" json:"source"`

	SupersededAt *time.Time `gorm:"column:superseded_at" json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}

func (Quiz) TableName() string { return "progression_quiz" }

// PublicQuestion is a Question without its answer key.
type PublicQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func (q *Quiz) PublicQuestions() []PublicQuestion {
	if q == nil {
		return nil
	}
	out := make([]PublicQuestion, 0, len(q.Questions))
	for _, item := range q.Questions {
		out = append(out, PublicQuestion{Question: item.Question, Options: append([]string(nil), item.Options...)})
	}
	return out
}
