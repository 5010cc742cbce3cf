package db

import (
	"fmt"

	"github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&progression.Plan{},
		&progression.Month{},
		&progression.Day{},
		&progression.Quiz{},
		&progression.Submission{},
		&progression.ProgressionEvent{},
	); err != nil {
		return err
	}
	return EnsureProgressionIndexes(db)
}

// EnsureProgressionIndexes adds the indexes gorm tags cannot express.
// Both Postgres and SQLite support partial indexes.
func EnsureProgressionIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_progression_month_one_active
		ON progression_month(plan_id)
		WHERE status = 'active';
	`).Error; err != nil {
		return fmt.Errorf("create idx_progression_month_one_active: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_progression_submission_day_passed
		ON progression_submission(day_id, score DESC)
		WHERE passed = true;
	`).Error; err != nil {
		return fmt.Errorf("create idx_progression_submission_day_passed: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_progression_event_unpublished
		ON progression_event(occurred_at)
		WHERE published_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_progression_event_unpublished: %w", err)
	}
	return nil
}
