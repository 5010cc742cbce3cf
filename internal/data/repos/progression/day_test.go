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

func TestMonthAndDayRepos(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	months := NewMonthRepo(db, testutil.Logger(t))
	days := NewDayRepo(db, testutil.Logger(t))

	seed := testutil.SeedPlan(t, ctx, tx, uuid.New(), 2, 3)

	m2, err := months.GetByPlanIndex(dbc, seed.Plan.ID, 2)
	if err != nil || m2 == nil || m2.Status != types.MonthLocked {
		t.Fatalf("GetByPlanIndex: got=%+v err=%v", m2, err)
	}
	if rows, err := months.ListByPlan(dbc, seed.Plan.ID); err != nil || len(rows) != 2 || rows[0].Index != 1 {
		t.Fatalf("ListByPlan: err=%v rows=%d", err, len(rows))
	}

	newDays := []*types.Day{
		{PlanID: seed.Plan.ID, MonthID: m2.ID, MonthIndex: 2, Index: 1, Concept: "a"},
		{PlanID: seed.Plan.ID, MonthID: m2.ID, MonthIndex: 2, Index: 2, Concept: "b"},
	}
	if err := days.Create(dbc, newDays); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if newDays[0].Threshold != types.DefaultThreshold {
		t.Fatalf("default threshold not applied: %d", newDays[0].Threshold)
	}
	if rows, err := days.ListByMonth(dbc, seed.Plan.ID, 2); err != nil || len(rows) != 2 {
		t.Fatalf("ListByMonth: err=%v len=%d", err, len(rows))
	}
	if rows, err := days.ListByPlan(dbc, seed.Plan.ID); err != nil || len(rows) != 5 {
		t.Fatalf("ListByPlan: err=%v len=%d", err, len(rows))
	}

	d := seed.Days[1][0]
	now := time.Now().UTC()
	ok, err := days.UpdateFieldsWhere(dbc, d.ID, "started_at IS NULL", nil, map[string]interface{}{"started_at": now})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsWhere first: ok=%v err=%v", ok, err)
	}
	ok, err = days.UpdateFieldsWhere(dbc, d.ID, "started_at IS NULL", nil, map[string]interface{}{"started_at": now})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsWhere second: expected no-op, ok=%v err=%v", ok, err)
	}
	got, err := days.Get(dbc, seed.Plan.ID, 1, 1)
	if err != nil || got == nil || got.StartedAt == nil {
		t.Fatalf("Get: got=%+v err=%v", got, err)
	}
	if got, err := days.Get(dbc, seed.Plan.ID, 1, 99); err != nil || got != nil {
		t.Fatalf("Get missing: got=%+v err=%v", got, err)
	}
}
