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

type QuizRepo interface {
	Create(dbc dbctx.Context, row *types.Quiz) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Quiz, error)
	ListByDay(dbc dbctx.Context, dayID uuid.UUID) ([]*types.Quiz, error)
	ListCurrentByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Quiz, error)
	MarkSuperseded(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{db: db, log: baseLog.With("repo", "QuizRepo")}
}

func (r *quizRepo) Create(dbc dbctx.Context, row *types.Quiz) error {
	if row == nil {
		return fmt.Errorf("missing quiz")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Source == "" {
		row.Source = types.QuizSourceGenerated
	}
	return dbc.Conn(r.db).Create(row).Error
}

func (r *quizRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error) {
	var out types.Quiz
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *quizRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Quiz, error) {
	out := []*types.Quiz{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizRepo) ListByDay(dbc dbctx.Context, dayID uuid.UUID) ([]*types.Quiz, error) {
	out := []*types.Quiz{}
	if err := dbc.Conn(r.db).
		Where("day_id = ?", dayID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListCurrentByPlan returns the quizzes not yet superseded, in curriculum order.
func (r *quizRepo) ListCurrentByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Quiz, error) {
	out := []*types.Quiz{}
	if planID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("plan_id = ? AND superseded_at IS NULL", planID).
		Order("month_index ASC, day_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizRepo) MarkSuperseded(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.Conn(r.db).
		Model(&types.Quiz{}).
		Where("id = ? AND superseded_at IS NULL", id).
		Update("superseded_at", at).Error
}
