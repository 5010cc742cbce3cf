package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MonthStatus string

const (
	MonthLocked    MonthStatus = "locked"
	MonthActive    MonthStatus = "active"
	MonthCompleted MonthStatus = "completed"
)

const DefaultDaysPerMonth = 30

// Month is a 1-based, contiguous slice of a Plan. At most one Month per Plan is active.
type Month struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progression_month_plan_index,priority:1" json:"plan_id"`
	Index  int       `gorm:"column:month_index;not null;uniqueIndex:idx_progression_month_plan_index,priority:2" json:"month"`

	Title       string                     `gorm:"column:title;type:text;not null" json:"title"`
	Description string                     `gorm:"column:description;type:text" json:"description,omitempty"`
	Goals       datatypes.JSONSlice[string] `gorm:"column:goals" json:"goals"`
	Topics      datatypes.JSONSlice[string] `gorm:"column:topics" json:"topics"`

	Status        MonthStatus `gorm:"column:status;type:text;not null;default:'locked'" json:"status"`
	DaysTotal     int         `gorm:"column:days_total;not null;default:30" json:"days_total"`
	DaysGenerated bool        `gorm:"column:days_generated;not null;default:false" json:"days_generated"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Month) TableName() string { return "progression_month" }

func (m *Month) IsLocked() bool    { return m != nil && m.Status == MonthLocked }
func (m *Month) IsActive() bool    { return m != nil && m.Status == MonthActive }
func (m *Month) IsCompleted() bool { return m != nil && m.Status == MonthCompleted }

// CanTransitionMonth reports whether a month may move from -> to.
// Months move locked -> active -> completed and are never reopened.
func CanTransitionMonth(from, to MonthStatus) bool {
	switch from {
	case MonthLocked:
		return to == MonthActive
	case MonthActive:
		return to == MonthCompleted
	default:
		return false
	}
}
