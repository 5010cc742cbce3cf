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

type DayRepo interface {
	Create(dbc dbctx.Context, rows []*types.Day) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Day, error)
	Get(dbc dbctx.Context, planID uuid.UUID, month, day int) (*types.Day, error)
	ListByMonth(dbc dbctx.Context, planID uuid.UUID, month int) ([]*types.Day, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Day, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsWhere applies updates only when cond holds; it reports whether a row changed.
	UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, cond string, args []interface{}, updates map[string]interface{}) (bool, error)
}

type dayRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDayRepo(db *gorm.DB, baseLog *logger.Logger) DayRepo {
	return &dayRepo{db: db, log: baseLog.With("repo", "DayRepo")}
}

func (r *dayRepo) Create(dbc dbctx.Context, rows []*types.Day) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, x := range rows {
		if x == nil {
			return fmt.Errorf("nil day row")
		}
		if x.ID == uuid.Nil {
			x.ID = uuid.New()
		}
		if x.Threshold <= 0 {
			x.Threshold = types.DefaultThreshold
		}
		if x.TimeEstimateMinutes <= 0 {
			x.TimeEstimateMinutes = 60
		}
		x.CreatedAt = now
		x.UpdatedAt = now
	}
	return dbc.Conn(r.db).CreateInBatches(&rows, 100).Error
}

func (r *dayRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Day, error) {
	var out types.Day
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *dayRepo) Get(dbc dbctx.Context, planID uuid.UUID, month, day int) (*types.Day, error) {
	var out types.Day
	if err := dbc.Conn(r.db).
		Where("plan_id = ? AND month_index = ? AND day_index = ?", planID, month, day).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *dayRepo) ListByMonth(dbc dbctx.Context, planID uuid.UUID, month int) ([]*types.Day, error) {
	out := []*types.Day{}
	if err := dbc.Conn(r.db).
		Where("plan_id = ? AND month_index = ?", planID, month).
		Order("day_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dayRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.Day, error) {
	out := []*types.Day{}
	if err := dbc.Conn(r.db).
		Where("plan_id = ?", planID).
		Order("month_index ASC, day_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dayRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	_, err := r.UpdateFieldsWhere(dbc, id, "", nil, updates)
	return err
}

func (r *dayRepo) UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, cond string, args []interface{}, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	q := dbc.Conn(r.db).Model(&types.Day{}).Where("id = ?", id)
	if cond != "" {
		q = q.Where(cond, args...)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
