package progression

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

// ListMonthDays returns a month's days with derived statuses, generating the
// days on first view. Concurrent first views share one generation.
func (u Usecases) ListMonthDays(ctx context.Context, learnerID, planID uuid.UUID, monthIndex int) (MonthDaysView, error) {
	const op = "Learning.Progression.ListMonthDays"
	if learnerID == uuid.Nil || planID == uuid.Nil {
		return MonthDaysView{}, invalid(op, "missing learner_id or plan_id")
	}
	if monthIndex < 1 {
		return MonthDaysView{}, invalid(op, "month must be >= 1")
	}
	dbc := dbctx.Background(ctx)
	plan, month, err := u.loadPlanMonth(dbc, op, learnerID, planID, monthIndex)
	if err != nil {
		return MonthDaysView{}, err
	}
	if !month.DaysGenerated {
		if month, err = u.materializeMonth(ctx, plan, month); err != nil {
			return MonthDaysView{}, err
		}
	}
	days, err := u.deps.Days.ListByMonth(dbc, plan.ID, month.Index)
	if err != nil {
		return MonthDaysView{}, internal(op, err)
	}
	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return MonthDaysView{}, internal(op, err)
	}
	return MonthDaysView{
		PlanID: plan.ID,
		Month:  *month,
		Days:   summarizeMonthDays(month, days, passed),
	}, nil
}

func (u Usecases) materializeMonth(ctx context.Context, plan *types.Plan, month *types.Month) (*types.Month, error) {
	key := fmt.Sprintf("month:%s:%d", plan.ID, month.Index)
	v, err, _ := u.lazy.Do(key, func() (interface{}, error) {
		outlines := u.deps.Content.MonthDays(ctx, monthDaysRequest(plan, month))
		var res domainagg.MaterializeMonthDaysResult
		err := u.withPlanLock(ctx, plan.LearnerID, plan.ID, func() error {
			var aerr error
			res, aerr = u.deps.Aggregate.MaterializeMonthDays(ctx, domainagg.MaterializeMonthDaysInput{
				LearnerID: plan.LearnerID,
				PlanID:    plan.ID,
				Month:     month.Index,
				Days:      outlines,
			})
			return aerr
		})
		if err != nil {
			return nil, err
		}
		if res.Created {
			u.deps.Log.Info("month days materialized", "plan_id", plan.ID, "month", month.Index, "days", len(res.Days))
		}
		m := res.Month
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Month), nil
}

// GetDay returns a day with its lesson, public quiz and quiz status. Days of an
// unlocked month get their materials generated on first view.
func (u Usecases) GetDay(ctx context.Context, learnerID, planID uuid.UUID, monthIndex, dayIndex int) (DayView, error) {
	const op = "Learning.Progression.GetDay"
	addr := DayAddress{LearnerID: learnerID, PlanID: planID, Month: monthIndex, Day: dayIndex}
	if err := addr.validate(op); err != nil {
		return DayView{}, err
	}
	dbc := dbctx.Background(ctx)
	plan, month, err := u.loadPlanMonth(dbc, op, learnerID, planID, monthIndex)
	if err != nil {
		return DayView{}, err
	}
	if !month.DaysGenerated {
		if month, err = u.materializeMonth(ctx, plan, month); err != nil {
			return DayView{}, err
		}
	}
	day, err := u.deps.Days.Get(dbc, plan.ID, monthIndex, dayIndex)
	if err != nil {
		return DayView{}, internal(op, err)
	}
	if day == nil {
		return DayView{}, notFound(op, "day not found")
	}

	var quiz *types.Quiz
	if !month.IsLocked() && (day.CurrentQuizID == nil || !day.HasContent()) {
		if day, quiz, err = u.ensureMaterials(ctx, plan, addr, day); err != nil {
			return DayView{}, err
		}
	} else if day.CurrentQuizID != nil {
		if quiz, err = u.deps.Quizzes.GetByID(dbc, *day.CurrentQuizID); err != nil {
			return DayView{}, internal(op, err)
		}
	}

	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return DayView{}, internal(op, err)
	}
	prevPassed := true
	if day.Index > 1 {
		prev, err := u.deps.Days.Get(dbc, plan.ID, monthIndex, day.Index-1)
		if err != nil {
			return DayView{}, internal(op, err)
		}
		prevPassed = prev != nil && passed[prev.ID]
	}
	status, err := u.quizStatus(dbc, day, quiz, passed[day.ID])
	if err != nil {
		return DayView{}, internal(op, err)
	}

	view := DayView{
		PlanID:     plan.ID,
		MonthTitle: month.Title,
		Day:        summarizeDay(month, day, passed[day.ID], prevPassed),
		Revision:   day.ContentRevision,
		Quiz:       NewQuizView(quiz),
		QuizStatus: status,
	}
	if lesson, ok := day.Lesson(); ok {
		view.Lesson = &lesson
	}
	return view, nil
}

func (u Usecases) ensureMaterials(ctx context.Context, plan *types.Plan, addr DayAddress, day *types.Day) (*types.Day, *types.Quiz, error) {
	type ensured struct {
		day  *types.Day
		quiz *types.Quiz
	}
	v, err, _ := u.lazy.Do("day:"+day.ID.String(), func() (interface{}, error) {
		quiz, lesson := u.generateMaterials(ctx, day.Concept, plan.Learner.Data(), day.CurrentQuizID == nil, !day.HasContent())
		var res domainagg.EnsureDayMaterialsResult
		err := u.withPlanLock(ctx, addr.LearnerID, addr.PlanID, func() error {
			var aerr error
			res, aerr = u.deps.Aggregate.EnsureDayMaterials(ctx, domainagg.EnsureDayMaterialsInput{
				DayRef: addr.ref(),
				Quiz:   quiz,
				Lesson: lesson,
			})
			return aerr
		})
		if err != nil {
			return nil, err
		}
		d := res.Day
		return ensured{day: &d, quiz: res.Quiz}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	out := v.(ensured)
	return out.day, out.quiz, nil
}

func (u Usecases) loadPlanMonth(dbc dbctx.Context, op string, learnerID, planID uuid.UUID, monthIndex int) (*types.Plan, *types.Month, error) {
	plan, err := u.deps.Plans.GetForLearner(dbc, learnerID, planID)
	if err != nil {
		return nil, nil, internal(op, err)
	}
	if plan == nil {
		return nil, nil, notFound(op, "plan not found")
	}
	month, err := u.deps.Months.GetByPlanIndex(dbc, plan.ID, monthIndex)
	if err != nil {
		return nil, nil, internal(op, err)
	}
	if month == nil {
		return nil, nil, notFound(op, "month not found")
	}
	return plan, month, nil
}
