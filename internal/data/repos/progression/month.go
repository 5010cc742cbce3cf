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

type MonthRepo interface {
	Create(dbc dbctx.Context, rows []*types.Month) error
	GetByPlanIndex(dbc dbctx.Context, planID uuid.UUID, index int) (*types.Month, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Month, error)
	ListByPlans(dbc dbctx.Context, planIDs []uuid.UUID) ([]*types.Month, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	LockAfter(dbc dbctx.Context, planID uuid.UUID, index int) error
}

type monthRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMonthRepo(db *gorm.DB, baseLog *logger.Logger) MonthRepo {
	return &monthRepo{db: db, log: baseLog.With("repo", "MonthRepo")}
}

func (r *monthRepo) Create(dbc dbctx.Context, rows []*types.Month) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, x := range rows {
		if x == nil {
			return fmt.Errorf("nil month row")
		}
		if x.ID == uuid.Nil {
			x.ID = uuid.New()
		}
		x.CreatedAt = now
		x.UpdatedAt = now
	}
	return dbc.Conn(r.db).Create(&rows).Error
}

func (r *monthRepo) GetByPlanIndex(dbc dbctx.Context, planID uuid.UUID, index int) (*types.Month, error) {
	var out types.Month
	if err := dbc.Conn(r.db).
		Where("plan_id = ? AND month_index = ?", planID, index).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *monthRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Month, error) {
	out := []*types.Month{}
	if planID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("plan_id = ?", planID).
		Order("month_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *monthRepo) ListByPlans(dbc dbctx.Context, planIDs []uuid.UUID) ([]*types.Month, error) {
	out := []*types.Month{}
	if len(planIDs) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("plan_id IN ?", planIDs).
		Order("plan_id ASC, month_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *monthRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Conn(r.db).
		Model(&types.Month{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// LockAfter locks every non-completed month after index.
func (r *monthRepo) LockAfter(dbc dbctx.Context, planID uuid.UUID, index int) error {
	return dbc.Conn(r.db).
		Model(&types.Month{}).
		Where("plan_id = ? AND month_index > ? AND status <> ?", planID, index, types.MonthCompleted).
		Updates(map[string]interface{}{"status": types.MonthLocked, "updated_at": time.Now().UTC()}).Error
}
