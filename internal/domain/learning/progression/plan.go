package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PlanStatus string

const (
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
)

// LearnerProfile is the learner context handed to content generation.
type LearnerProfile struct {
	Name           string   `json:"name,omitempty"`
	Level          string   `json:"level,omitempty"`
	CareerGoals    []string `json:"career_goals,omitempty"`
	CurrentSkills  []string `json:"current_skills,omitempty"`
	TimeCommitment string   `json:"time_commitment,omitempty"`
}

// Plan is the root of a learner's multi-month curriculum.
// Version is bumped by every gating write and guards concurrent transitions.
type Plan struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_progression_plan_learner_activity,priority:1" json:"learner_id"`

	Title       string     `gorm:"column:title;type:text;not null" json:"title"`
	Status      PlanStatus `gorm:"column:status;type:text;not null;default:'in_progress';index" json:"status"`
	Version     int        `gorm:"column:version;not null;default:0" json:"version"`
	TotalMonths int        `gorm:"column:total_months;not null;default:0" json:"total_months"`

	Learner datatypes.JSONType[LearnerProfile] `gorm:"column:learner_context" json:"learner_context"`

	FocusMonth     int        `gorm:"column:focus_month;not null;default:0" json:"focus_month"`
	FocusDay       int        `gorm:"column:focus_day;not null;default:0" json:"focus_day"`
	LastActivityAt *time.Time `gorm:"column:last_activity_at;index:idx_progression_plan_learner_activity,priority:2" json:"last_activity_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "progression_plan" }

func (p *Plan) IsCompleted() bool { return p != nil && p.Status == PlanCompleted }

// ActivityTime orders plans by recency; plans never started fall back to creation time.
func (p *Plan) ActivityTime() time.Time {
	if p == nil {
		return time.Time{}
	}
	if p.LastActivityAt != nil {
		return *p.LastActivityAt
	}
	return p.CreatedAt
}
