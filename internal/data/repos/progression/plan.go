package progression

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/progression-engine/internal/data/db"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

type PlanRepo interface {
	Create(dbc dbctx.Context, row *types.Plan) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error)
	GetForLearner(dbc dbctx.Context, learnerID, id uuid.UUID) (*types.Plan, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error)
	ListByLearner(dbc dbctx.Context, learnerID uuid.UUID) ([]*types.Plan, error)
	MostRecentlyActive(dbc dbctx.Context, learnerID uuid.UUID) (*types.Plan, error)
	CountByStatus(dbc dbctx.Context) (map[types.PlanStatus]int64, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) Create(dbc dbctx.Context, row *types.Plan) error {
	if row == nil {
		return fmt.Errorf("missing plan")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = row.CreatedAt
	if row.Status == "" {
		row.Status = types.PlanInProgress
	}
	return dbc.Conn(r.db).Create(row).Error
}

func (r *planRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Plan
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// GetForLearner returns nil when the plan does not exist or belongs to someone else.
func (r *planRepo) GetForLearner(dbc dbctx.Context, learnerID, id uuid.UUID) (*types.Plan, error) {
	p, err := r.GetByID(dbc, id)
	if err != nil || p == nil {
		return nil, err
	}
	if p.LearnerID != learnerID {
		return nil, nil
	}
	return p, nil
}

// LockByID takes a row lock on Postgres. SQLite serializes writers already.
func (r *planRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	q := dbc.Tx.WithContext(dbc.Ctx)
	if !db.IsSQLite(dbc.Tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out types.Plan
	if err := q.Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *planRepo) ListByLearner(dbc dbctx.Context, learnerID uuid.UUID) ([]*types.Plan, error) {
	out := []*types.Plan{}
	if learnerID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("learner_id = ?", learnerID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MostRecentlyActive orders by last activity, falling back to creation time for
// plans never started.
func (r *planRepo) MostRecentlyActive(dbc dbctx.Context, learnerID uuid.UUID) (*types.Plan, error) {
	plans, err := r.ListByLearner(dbc, learnerID)
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	best := plans[0]
	for _, p := range plans[1:] {
		if p.ActivityTime().After(best.ActivityTime()) {
			best = p
		}
	}
	return best, nil
}

func (r *planRepo) CountByStatus(dbc dbctx.Context) (map[types.PlanStatus]int64, error) {
	type row struct {
		Status types.PlanStatus
		N      int64
	}
	rows := []row{}
	if err := dbc.Conn(r.db).
		Model(&types.Plan{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[types.PlanStatus]int64{}
	for _, x := range rows {
		out[x.Status] = x.N
	}
	return out, nil
}
