package progression

import (
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

func cursorPlan(months ...types.MonthStatus) (*types.Plan, []*types.Month, map[int][]*types.Day) {
	plan := &types.Plan{ID: uuid.New(), Title: "p", Status: types.PlanInProgress}
	var ms []*types.Month
	days := map[int][]*types.Day{}
	for i, st := range months {
		idx := i + 1
		ms = append(ms, &types.Month{Index: idx, Status: st, DaysTotal: 3})
		if st == types.MonthLocked {
			continue
		}
		for d := 1; d <= 3; d++ {
			days[idx] = append(days[idx], &types.Day{ID: uuid.New(), MonthIndex: idx, Index: d})
		}
	}
	return plan, ms, days
}

func TestDeriveCursor(t *testing.T) {
	t.Run("first unpassed day of active month", func(t *testing.T) {
		plan, months, days := cursorPlan(types.MonthActive, types.MonthLocked)
		passed := map[uuid.UUID]bool{days[1][0].ID: true}
		got := DeriveCursor(plan, months, days, passed)
		if got.Month != 1 || got.Day != 2 {
			t.Fatalf("cursor = %d/%d, want 1/2", got.Month, got.Day)
		}
	})

	t.Run("fully passed month points at next month", func(t *testing.T) {
		plan, months, days := cursorPlan(types.MonthActive, types.MonthLocked)
		passed := map[uuid.UUID]bool{}
		for _, d := range days[1] {
			passed[d.ID] = true
		}
		got := DeriveCursor(plan, months, days, passed)
		if got.Month != 2 || got.Day != 1 {
			t.Fatalf("cursor = %d/%d, want 2/1", got.Month, got.Day)
		}
	})

	t.Run("fully passed last month stays on last day", func(t *testing.T) {
		plan, months, days := cursorPlan(types.MonthCompleted, types.MonthActive)
		passed := map[uuid.UUID]bool{}
		for _, d := range days[2] {
			passed[d.ID] = true
		}
		got := DeriveCursor(plan, months, days, passed)
		if got.Month != 2 || got.Day != 3 || got.PlanCompleted {
			t.Fatalf("cursor = %+v, want 2/3 not completed", got)
		}
	})

	t.Run("completed plan pins last day", func(t *testing.T) {
		plan, months, days := cursorPlan(types.MonthCompleted, types.MonthCompleted)
		plan.Status = types.PlanCompleted
		got := DeriveCursor(plan, months, days, map[uuid.UUID]bool{})
		if !got.PlanCompleted || got.Month != 2 || got.Day != 3 {
			t.Fatalf("cursor = %+v, want completed at 2/3", got)
		}
	})

	t.Run("active month without days starts at day one", func(t *testing.T) {
		plan, months, _ := cursorPlan(types.MonthCompleted, types.MonthLocked)
		months[1].Status = types.MonthActive
		got := DeriveCursor(plan, months, map[int][]*types.Day{}, map[uuid.UUID]bool{})
		if got.Month != 2 || got.Day != 1 {
			t.Fatalf("cursor = %d/%d, want 2/1", got.Month, got.Day)
		}
	})
}

func TestDeriveDayStatus(t *testing.T) {
	active := &types.Month{Status: types.MonthActive}
	locked := &types.Month{Status: types.MonthLocked}
	now := time.Now()
	started := &types.Day{StartedAt: &now}

	cases := []struct {
		name       string
		month      *types.Month
		day        *types.Day
		passed     bool
		prevPassed bool
		want       DayStatus
	}{
		{"passed wins", active, &types.Day{}, true, false, DayCompleted},
		{"locked month", locked, &types.Day{}, false, true, DayLocked},
		{"previous not passed", active, &types.Day{}, false, false, DayLocked},
		{"started", active, started, false, true, DayInProgress},
		{"available", active, &types.Day{}, false, true, DayAvailable},
	}
	for _, tc := range cases {
		if got := deriveDayStatus(tc.month, tc.day, tc.passed, tc.prevPassed); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestPercentRoundsToOneDecimal(t *testing.T) {
	if got := percent(1, 3); got != 33.3 {
		t.Fatalf("percent(1,3) = %v", got)
	}
	if got := percent(2, 3); got != 66.7 {
		t.Fatalf("percent(2,3) = %v", got)
	}
	if got := percent(1, 0); got != 0 {
		t.Fatalf("percent(1,0) = %v", got)
	}
}
