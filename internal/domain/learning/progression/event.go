package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventDayStarted     EventType = "day_started"
	EventDayCompleted   EventType = "day_completed"
	EventMonthCompleted EventType = "month_completed"
	EventPlanCompleted  EventType = "plan_completed"
)

// ProgressionEvent is the append-only transition log. Rows are written in the
// same transaction as the transition and published after commit.
type ProgressionEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID    uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"learner_id"`
	Type      EventType `gorm:"column:event_type;type:text;not null;index" json:"type"`
	// Sequence orders events emitted by the same transition.
	Sequence int `gorm:"column:sequence;not null;default:0" json:"sequence"`

	MonthIndex int    `gorm:"column:month_index;not null;default:0" json:"month,omitempty"`
	DayIndex   int    `gorm:"column:day_index;not null;default:0" json:"day,omitempty"`
	Score      *int   `gorm:"column:score" json:"score,omitempty"`
	Concept    string `gorm:"column:concept;type:text" json:"concept,omitempty"`

	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;not null;index" json:"occurred_at"`
	PublishedAt *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (ProgressionEvent) TableName() string { return "progression_event" }
