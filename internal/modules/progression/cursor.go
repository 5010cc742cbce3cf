package progression

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

// Cursor is the learner's position. It is always derived, never stored.
type Cursor struct {
	PlanID        uuid.UUID `json:"plan_id"`
	PlanTitle     string    `json:"plan_title"`
	Month         int       `json:"month"`
	Day           int       `json:"day"`
	Concept       string    `json:"concept,omitempty"`
	PlanCompleted bool      `json:"plan_completed"`
}

// DeriveCursor points at the first day of the active month without a passing
// submission. A completed plan points at its last day. When the active month is
// fully passed but not yet acknowledged, the cursor moves to the next month's day 1.
func DeriveCursor(plan *types.Plan, months []*types.Month, daysByMonth map[int][]*types.Day, passed map[uuid.UUID]bool) Cursor {
	out := Cursor{PlanID: plan.ID, PlanTitle: plan.Title}
	if len(months) == 0 {
		out.Month, out.Day = 1, 1
		return out
	}
	if plan.IsCompleted() {
		last := months[len(months)-1]
		out.PlanCompleted = true
		out.Month = last.Index
		days := daysByMonth[last.Index]
		if len(days) > 0 {
			out.Day = days[len(days)-1].Index
			out.Concept = days[len(days)-1].Concept
		} else {
			out.Day = last.DaysTotal
		}
		return out
	}

	var active *types.Month
	for _, m := range months {
		if m.IsActive() {
			active = m
			break
		}
	}
	if active == nil {
		// No active month: the first non-completed one is next.
		for _, m := range months {
			if !m.IsCompleted() {
				active = m
				break
			}
		}
	}
	if active == nil {
		last := months[len(months)-1]
		out.Month, out.Day = last.Index, last.DaysTotal
		return out
	}

	for _, d := range daysByMonth[active.Index] {
		if !passed[d.ID] {
			out.Month, out.Day, out.Concept = active.Index, d.Index, d.Concept
			return out
		}
	}
	days := daysByMonth[active.Index]
	if len(days) == 0 {
		out.Month, out.Day = active.Index, 1
		return out
	}
	for _, m := range months {
		if m.Index > active.Index && !m.IsCompleted() {
			out.Month, out.Day = m.Index, 1
			if next := daysByMonth[m.Index]; len(next) > 0 {
				out.Concept = next[0].Concept
			}
			return out
		}
	}
	lastDay := days[len(days)-1]
	out.Month, out.Day, out.Concept = active.Index, lastDay.Index, lastDay.Concept
	return out
}

// GetCursor returns the position in the learner's most recently active plan.
func (u Usecases) GetCursor(ctx context.Context, learnerID uuid.UUID) (Cursor, error) {
	const op = "Learning.Progression.GetCursor"
	if learnerID == uuid.Nil {
		return Cursor{}, invalid(op, "missing learner_id")
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.MostRecentlyActive(dbc, learnerID)
	if err != nil {
		return Cursor{}, internal(op, err)
	}
	if plan == nil {
		return Cursor{}, notFound(op, "learner has no plan")
	}
	return u.cursorFor(dbc, plan)
}

func (u Usecases) cursorFor(dbc dbctx.Context, plan *types.Plan) (Cursor, error) {
	const op = "Learning.Progression.GetCursor"
	months, err := u.deps.Months.ListByPlan(dbc, plan.ID)
	if err != nil {
		return Cursor{}, internal(op, err)
	}
	days, err := u.deps.Days.ListByPlan(dbc, plan.ID)
	if err != nil {
		return Cursor{}, internal(op, err)
	}
	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return Cursor{}, internal(op, err)
	}
	return DeriveCursor(plan, months, groupDays(days), passed), nil
}

// groupDays buckets days by month, preserving day order.
func groupDays(days []*types.Day) map[int][]*types.Day {
	out := map[int][]*types.Day{}
	for _, d := range days {
		out[d.MonthIndex] = append(out[d.MonthIndex], d)
	}
	return out
}
