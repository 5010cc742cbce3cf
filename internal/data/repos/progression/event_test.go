package progression

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/progression-engine/internal/data/repos/testutil"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

func TestEventRepoOutbox(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewEventRepo(db, testutil.Logger(t))

	planID := uuid.New()
	at := time.Now().UTC().Add(-time.Minute)
	rows, err := repo.Create(dbc, []*types.ProgressionEvent{
		{PlanID: planID, LearnerID: uuid.New(), Type: types.EventDayCompleted, MonthIndex: 1, DayIndex: 30, OccurredAt: at, Sequence: 0},
		{PlanID: planID, LearnerID: uuid.New(), Type: types.EventMonthCompleted, MonthIndex: 1, OccurredAt: at, Sequence: 1},
	})
	if err != nil || len(rows) != 2 {
		t.Fatalf("Create: err=%v len=%d", err, len(rows))
	}

	listed, err := repo.ListByPlan(dbc, planID, 0)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListByPlan: err=%v len=%d", err, len(listed))
	}
	if listed[0].Type != types.EventDayCompleted || listed[1].Type != types.EventMonthCompleted {
		t.Fatalf("ListByPlan order: %s, %s", listed[0].Type, listed[1].Type)
	}

	pending, err := repo.ListUnpublished(dbc, time.Now().UTC(), 10)
	if err != nil || len(pending) < 2 {
		t.Fatalf("ListUnpublished: err=%v len=%d", err, len(pending))
	}
	if err := repo.MarkPublished(dbc, []uuid.UUID{rows[0].ID}, time.Now().UTC()); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	listed, _ = repo.ListByPlan(dbc, planID, 0)
	if listed[0].PublishedAt == nil || listed[1].PublishedAt != nil {
		t.Fatalf("MarkPublished did not apply to exactly one row")
	}
}
