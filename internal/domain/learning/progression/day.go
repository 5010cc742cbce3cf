package progression

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultThreshold = 70

// Day is one unit of the curriculum. It has no completed column: a Day is
// complete when a passing Submission exists for it. CompletedAt records when
// that completion was acknowledged.
type Day struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progression_day_plan_month_day,priority:1" json:"plan_id"`
	MonthID    uuid.UUID `gorm:"type:uuid;not null;index" json:"month_id"`
	MonthIndex int       `gorm:"column:month_index;not null;uniqueIndex:idx_progression_day_plan_month_day,priority:2" json:"month"`
	Index      int       `gorm:"column:day_index;not null;uniqueIndex:idx_progression_day_plan_month_day,priority:3" json:"day"`

	Concept             string `gorm:"column:concept;type:text;not null" json:"concept"`
	TimeEstimateMinutes int    `gorm:"column:time_estimate_minutes;not null;default:60" json:"time_estimate_minutes"`
	Threshold           int    `gorm:"column:threshold;not null;default:70" json:"threshold"`

	Content              datatypes.JSON `gorm:"column:content" json:"content,omitempty"`
	ContentRevision      int            `gorm:"column:content_revision;not null;default:0" json:"content_revision"`
	ContentRegeneratedAt *time.Time     `gorm:"column:content_regenerated_at" json:"content_regenerated_at,omitempty"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	BestScore         *int       `gorm:"column:best_score" json:"best_score,omitempty"`
	LastScore         *int       `gorm:"column:last_score" json:"last_score,omitempty"`
	AttemptCount      int        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	LastAttemptNumber int        `gorm:"column:last_attempt_number;not null;default:0" json:"-"`
	CurrentQuizID     *uuid.UUID `gorm:"type:uuid;column:current_quiz_id" json:"current_quiz_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Day) TableName() string { return "progression_day" }

func (d *Day) Started() bool      { return d != nil && d.StartedAt != nil }
func (d *Day) Acknowledged() bool { return d != nil && d.CompletedAt != nil }
func (d *Day) HasContent() bool   { return d != nil && len(d.Content) > 0 && string(d.Content) != "null" }

func (d *Day) EffectiveThreshold() int {
	if d == nil {
		return DefaultThreshold
	}
	return ClampThreshold(d.Threshold)
}

// ClampThreshold maps anything outside 1-100 to DefaultThreshold.
func ClampThreshold(t int) int {
	if t <= 0 || t > 100 {
		return DefaultThreshold
	}
	return t
}

// Lesson decodes the stored lesson content. ok is false when none has been generated.
func (d *Day) Lesson() (LessonContent, bool) {
	var out LessonContent
	if !d.HasContent() {
		return out, false
	}
	if err := json.Unmarshal(d.Content, &out); err != nil {
		return out, false
	}
	return out, true
}

// DayOutline is the pre-materialization shape of a Day.
type DayOutline struct {
	Concept             string `json:"concept"`
	TimeEstimateMinutes int    `json:"time_estimate_minutes"`
	Threshold           int    `json:"threshold,omitempty"`
}

// Normalize trims the concept and fills the estimate and threshold defaults.
func (o DayOutline) Normalize() DayOutline {
	o.Concept = strings.TrimSpace(o.Concept)
	if o.TimeEstimateMinutes <= 0 {
		o.TimeEstimateMinutes = 60
	}
	o.Threshold = ClampThreshold(o.Threshold)
	return o
}

type LessonSection struct {
	Title      string   `json:"title"`
	Minutes    int      `json:"minutes"`
	Steps      []string `json:"steps"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

type LessonResource struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// LessonContent is the opaque-to-the-engine study material for a Day.
type LessonContent struct {
	Overview           string           `json:"overview"`
	Sections           []LessonSection  `json:"sections"`
	Resources          []LessonResource `json:"resources"`
	Checklist          []string         `json:"checklist"`
	LearningObjectives []string         `json:"learning_objectives"`
	RemediationFocus   []string         `json:"remediation_focus,omitempty"`
	Source             string           `json:"source,omitempty"`
}

func EncodeLesson(l LessonContent) (datatypes.JSON, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
