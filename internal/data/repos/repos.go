package repos

import (
	"github.com/yungbote/progression-engine/internal/data/repos/progression"
	"github.com/yungbote/progression-engine/internal/platform/logger"
	"gorm.io/gorm"
)

type PlanRepo = progression.PlanRepo
type MonthRepo = progression.MonthRepo
type DayRepo = progression.DayRepo
type QuizRepo = progression.QuizRepo
type SubmissionRepo = progression.SubmissionRepo
type EventRepo = progression.EventRepo

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return progression.NewPlanRepo(db, baseLog)
}
func NewMonthRepo(db *gorm.DB, baseLog *logger.Logger) MonthRepo {
	return progression.NewMonthRepo(db, baseLog)
}
func NewDayRepo(db *gorm.DB, baseLog *logger.Logger) DayRepo {
	return progression.NewDayRepo(db, baseLog)
}
func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return progression.NewQuizRepo(db, baseLog)
}
func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return progression.NewSubmissionRepo(db, baseLog)
}
func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return progression.NewEventRepo(db, baseLog)
}
