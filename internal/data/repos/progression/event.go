package progression

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// EventRepo is the transition outbox.
type EventRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProgressionEvent) ([]*types.ProgressionEvent, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.ProgressionEvent, error)
	ListUnpublished(dbc dbctx.Context, olderThan time.Time, limit int) ([]*types.ProgressionEvent, error)
	MarkPublished(dbc dbctx.Context, ids []uuid.UUID, at time.Time) error
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) Create(dbc dbctx.Context, rows []*types.ProgressionEvent) ([]*types.ProgressionEvent, error) {
	if len(rows) == 0 {
		return []*types.ProgressionEvent{}, nil
	}
	now := time.Now().UTC()
	for _, x := range rows {
		if x == nil {
			continue
		}
		if x.ID == uuid.Nil {
			x.ID = uuid.New()
		}
		if x.OccurredAt.IsZero() {
			x.OccurredAt = now
		}
		x.CreatedAt = now
	}
	if err := dbc.Conn(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *eventRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.ProgressionEvent, error) {
	out := []*types.ProgressionEvent{}
	if planID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 500
	}
	if err := dbc.Conn(r.db).
		Where("plan_id = ?", planID).
		Order("occurred_at ASC, sequence ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) ListUnpublished(dbc dbctx.Context, olderThan time.Time, limit int) ([]*types.ProgressionEvent, error) {
	out := []*types.ProgressionEvent{}
	if limit <= 0 {
		limit = 200
	}
	if err := dbc.Conn(r.db).
		Where("published_at IS NULL AND occurred_at <= ?", olderThan).
		Order("occurred_at ASC, sequence ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) MarkPublished(dbc dbctx.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.ProgressionEvent{}).
		Where("id IN ? AND published_at IS NULL", ids).
		Update("published_at", at).Error
}
