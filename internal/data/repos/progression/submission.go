package progression

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// SubmissionRepo is append-only: there is no update or delete.
type SubmissionRepo interface {
	Create(dbc dbctx.Context, row *types.Submission) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error)
	ListByDay(dbc dbctx.Context, dayID uuid.UUID) ([]*types.Submission, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Submission, error)
	MaxAttemptNumber(dbc dbctx.Context, dayID uuid.UUID) (int, error)
	BestPassing(dbc dbctx.Context, dayID uuid.UUID) (*types.Submission, error)
	LatestPassing(dbc dbctx.Context, dayID uuid.UUID) (*types.Submission, error)
	PassedDayIDs(dbc dbctx.Context, planID uuid.UUID) (map[uuid.UUID]bool, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) Create(dbc dbctx.Context, row *types.Submission) error {
	if row == nil {
		return fmt.Errorf("missing submission")
	}
	if row.AttemptNumber <= 0 {
		return fmt.Errorf("attempt_number must be >= 1")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return dbc.Conn(r.db).Create(row).Error
}

func (r *submissionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error) {
	var out types.Submission
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *submissionRepo) ListByDay(dbc dbctx.Context, dayID uuid.UUID) ([]*types.Submission, error) {
	out := []*types.Submission{}
	if err := dbc.Conn(r.db).
		Where("day_id = ?", dayID).
		Order("attempt_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Submission, error) {
	out := []*types.Submission{}
	if err := dbc.Conn(r.db).
		Where("plan_id = ?", planID).
		Order("month_index ASC, day_index ASC, attempt_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) MaxAttemptNumber(dbc dbctx.Context, dayID uuid.UUID) (int, error) {
	var max int
	if err := dbc.Conn(r.db).
		Model(&types.Submission{}).
		Where("day_id = ?", dayID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

// BestPassing returns the highest-scoring passing submission, most recent first on ties.
func (r *submissionRepo) BestPassing(dbc dbctx.Context, dayID uuid.UUID) (*types.Submission, error) {
	var out types.Submission
	if err := dbc.Conn(r.db).
		Where("day_id = ? AND passed = ?", dayID, true).
		Order("score DESC, attempt_number DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// LatestPassing returns the passing submission with the highest attempt number.
func (r *submissionRepo) LatestPassing(dbc dbctx.Context, dayID uuid.UUID) (*types.Submission, error) {
	var out types.Submission
	if err := dbc.Conn(r.db).
		Where("day_id = ? AND passed = ?", dayID, true).
		Order("attempt_number DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// PassedDayIDs is the ledger view of completion: the set of days with at least
// one passing submission.
func (r *submissionRepo) PassedDayIDs(dbc dbctx.Context, planID uuid.UUID) (map[uuid.UUID]bool, error) {
	ids := []uuid.UUID{}
	if err := dbc.Conn(r.db).
		Model(&types.Submission{}).
		Where("plan_id = ? AND passed = ?", planID, true).
		Distinct().
		Pluck("day_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
