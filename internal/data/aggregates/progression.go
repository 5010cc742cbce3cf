package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/progression-engine/internal/data/repos"
	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

const (
	defaultRemediationAfterAttempts = 2
	defaultFallbackQuizQuestions    = 10
)

type ProgressionAggregateDeps struct {
	Base BaseDeps

	Plans       repos.PlanRepo
	Months      repos.MonthRepo
	Days        repos.DayRepo
	Quizzes     repos.QuizRepo
	Submissions repos.SubmissionRepo
	Events      repos.EventRepo

	// RemediationAfterAttempts is the recorded attempt count at which a failed
	// completion makes remediation due.
	RemediationAfterAttempts int
	FallbackQuizQuestions    int
	Limits                   domainagg.PlanLimits
}

type progressionAggregate struct {
	deps ProgressionAggregateDeps
}

func NewProgressionAggregate(deps ProgressionAggregateDeps) domainagg.ProgressionAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.RemediationAfterAttempts <= 0 {
		deps.RemediationAfterAttempts = defaultRemediationAfterAttempts
	}
	if deps.FallbackQuizQuestions <= 0 {
		deps.FallbackQuizQuestions = defaultFallbackQuizQuestions
	}
	return &progressionAggregate{deps: deps}
}

func (a *progressionAggregate) configured() bool {
	return a.deps.Plans != nil && a.deps.Months != nil && a.deps.Days != nil &&
		a.deps.Quizzes != nil && a.deps.Submissions != nil && a.deps.Events != nil
}

func (a *progressionAggregate) CreatePlan(ctx context.Context, in domainagg.CreatePlanInput) (domainagg.CreatePlanResult, error) {
	const op = "Learning.Progression.CreatePlan"
	var out domainagg.CreatePlanResult
	if in.LearnerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing learner_id", nil)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing title", nil)
	}
	if len(in.Months) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "a plan needs at least one month", nil)
	}
	if err := a.deps.Limits.Check(op, in.Months); err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.CreatedAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.CreatePlanResult{}
		plan := &types.Plan{
			LearnerID:   in.LearnerID,
			Title:       title,
			Status:      types.PlanInProgress,
			TotalMonths: len(in.Months),
			Learner:     datatypes.NewJSONType(in.Learner),
			CreatedAt:   at,
		}
		if err := a.deps.Plans.Create(dbc, plan); err != nil {
			return err
		}

		months := make([]*types.Month, 0, len(in.Months))
		for i, m := range in.Months {
			daysTotal := m.DaysTotal
			if len(m.Days) > 0 {
				daysTotal = len(m.Days)
			}
			if daysTotal <= 0 {
				daysTotal = types.DefaultDaysPerMonth
			}
			mt := strings.TrimSpace(m.Title)
			if mt == "" {
				mt = fmt.Sprintf("Month %d", i+1)
			}
			row := &types.Month{
				PlanID:      plan.ID,
				Index:       i + 1,
				Title:       mt,
				Description: strings.TrimSpace(m.Description),
				Goals:       datatypes.JSONSlice[string](nonNilStrings(m.Goals)),
				Topics:      datatypes.JSONSlice[string](nonNilStrings(m.Topics)),
				Status:      types.MonthLocked,
				DaysTotal:   daysTotal,
			}
			if i == 0 {
				row.Status = types.MonthActive
				row.StartedAt = &at
			}
			months = append(months, row)
		}
		if err := a.deps.Months.Create(dbc, months); err != nil {
			return err
		}
		for i, m := range months {
			if i != 0 && len(in.Months[i].Days) == 0 {
				continue
			}
			if _, err := a.materialize(dbc, plan, m, in.Months[i].Days); err != nil {
				return err
			}
		}

		fresh, err := a.deps.Plans.GetByID(dbc, plan.ID)
		if err != nil {
			return err
		}
		list, err := a.deps.Months.ListByPlan(dbc, plan.ID)
		if err != nil {
			return err
		}
		out.Plan = *fresh
		for _, m := range list {
			out.Months = append(out.Months, *m)
		}
		return nil
	})
	return out, err
}

func (a *progressionAggregate) StartDay(ctx context.Context, in domainagg.StartDayInput) (domainagg.StartDayResult, error) {
	const op = "Learning.Progression.StartDay"
	var out domainagg.StartDayResult
	if err := validateDayRef(op, in.DayRef); err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.StartedAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.StartDayResult{}
		plan, month, err := a.lockPlanMonth(dbc, in.DayRef)
		if err != nil {
			return err
		}
		passed, err := a.deps.Submissions.PassedDayIDs(dbc, plan.ID)
		if err != nil {
			return err
		}
		tr := a.newTransition(plan, at)
		tr.prefetched[month.Index] = in.MonthDays

		if month.IsLocked() {
			if err := a.unlockByHealingPreviousMonth(dbc, tr, month, in.Day, passed); err != nil {
				return err
			}
			if month, err = a.deps.Months.GetByPlanIndex(dbc, plan.ID, month.Index); err != nil {
				return err
			}
			if !month.IsActive() {
				return PreconditionError("month is locked")
			}
		}

		day, err := a.deps.Days.Get(dbc, plan.ID, month.Index, in.Day)
		if err != nil {
			return err
		}
		if day == nil {
			return NotFoundError("day not found")
		}
		if day.Index > 1 {
			if err := a.healPreviousDay(dbc, tr, day, passed); err != nil {
				return err
			}
		}

		var quiz *types.Quiz
		if day.CurrentQuizID != nil {
			if quiz, err = a.deps.Quizzes.GetByID(dbc, *day.CurrentQuizID); err != nil {
				return err
			}
		}
		dayUpdates := map[string]interface{}{}
		if quiz == nil {
			if quiz, err = a.createQuiz(dbc, plan, day, in.Quiz, false, at); err != nil {
				return err
			}
			dayUpdates["current_quiz_id"] = quiz.ID
			out.QuizCreated = true
		}
		if day.StartedAt == nil {
			dayUpdates["started_at"] = at
			out.FirstStart = true
		}
		if !day.HasContent() {
			lesson := types.FallbackLesson(day.Concept, nil)
			if in.Lesson != nil {
				lesson = *in.Lesson
			}
			enc, err := types.EncodeLesson(lesson)
			if err != nil {
				return err
			}
			dayUpdates["content"] = enc
		}
		if len(dayUpdates) > 0 {
			if err := a.deps.Days.UpdateFields(dbc, day.ID, dayUpdates); err != nil {
				return err
			}
		}

		tr.planUpdates["focus_month"] = day.MonthIndex
		tr.planUpdates["focus_day"] = day.Index
		tr.planUpdates["last_activity_at"] = at
		tr.emit(types.EventDayStarted, day.MonthIndex, day.Index, nil, day.Concept, map[string]any{
			"first_start": out.FirstStart,
			"quiz_id":     quiz.ID.String(),
		})
		if err := a.commitTransition(dbc, tr); err != nil {
			return err
		}

		fresh, err := a.deps.Days.GetByID(dbc, day.ID)
		if err != nil {
			return err
		}
		out.Plan = *tr.plan
		out.Day = *fresh
		out.Quiz = *quiz
		out.Healed = tr.healed
		out.Events = tr.eventValues()
		return nil
	})
	return out, err
}

func (a *progressionAggregate) SubmitQuiz(ctx context.Context, in domainagg.SubmitQuizInput) (domainagg.SubmitQuizResult, error) {
	const op = "Learning.Progression.SubmitQuiz"
	var out domainagg.SubmitQuizResult
	if err := validateDayRef(op, in.DayRef); err != nil {
		return out, err
	}
	if len(in.Answers) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing answers", nil)
	}
	if in.TimeTakenSeconds != nil && *in.TimeTakenSeconds < 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "time_taken must be >= 0", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.SubmittedAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.SubmitQuizResult{}
		plan, month, day, err := a.lockDay(dbc, in.DayRef)
		if err != nil {
			return err
		}
		if month.IsLocked() {
			return PreconditionError("month is locked")
		}
		if day.StartedAt == nil {
			return PreconditionError("start the day first")
		}
		if day.CurrentQuizID == nil {
			return PreconditionError("no quiz has been generated for this day")
		}
		quiz, err := a.deps.Quizzes.GetByID(dbc, *day.CurrentQuizID)
		if err != nil {
			return err
		}
		if quiz == nil {
			return InvariantError("current quiz is missing")
		}

		graded, err := types.Grade(quiz.Questions, in.Answers, day.EffectiveThreshold())
		if err != nil {
			if errors.Is(err, types.ErrInvalidAnswers) {
				return ValidationError(err.Error())
			}
			return err
		}
		last, err := a.deps.Submissions.MaxAttemptNumber(dbc, day.ID)
		if err != nil {
			return err
		}
		sub := &types.Submission{
			PlanID:           plan.ID,
			LearnerID:        plan.LearnerID,
			DayID:            day.ID,
			QuizID:           quiz.ID,
			MonthIndex:       day.MonthIndex,
			DayIndex:         day.Index,
			AttemptNumber:    last + 1,
			Answers:          datatypes.JSONSlice[int](append([]int(nil), in.Answers...)),
			Results:          datatypes.JSONSlice[types.QuestionResult](graded.Results),
			CorrectCount:     graded.Correct,
			Total:            graded.Total,
			Score:            graded.Score,
			Threshold:        graded.Threshold,
			Passed:           graded.Passed,
			TimeTakenSeconds: in.TimeTakenSeconds,
			CreatedAt:        at,
		}
		if err := a.deps.Submissions.Create(dbc, sub); err != nil {
			return err
		}
		out.Submission = *sub
		return nil
	})
	return out, err
}

func (a *progressionAggregate) CompleteDay(ctx context.Context, in domainagg.CompleteDayInput) (domainagg.CompleteDayResult, error) {
	const op = "Learning.Progression.CompleteDay"
	var out domainagg.CompleteDayResult
	if err := validateDayRef(op, in.DayRef); err != nil {
		return out, err
	}
	if in.SubmissionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing submission_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.CompletedAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.CompleteDayResult{}
		plan, _, day, err := a.lockDay(dbc, in.DayRef)
		if err != nil {
			return err
		}
		sub, err := a.deps.Submissions.GetByID(dbc, in.SubmissionID)
		if err != nil {
			return err
		}
		if sub == nil || sub.DayID != day.ID || sub.PlanID != plan.ID {
			return ValidationError("submission does not belong to this day")
		}
		out.Submission = *sub
		out.Plan = *plan
		out.AttemptCount = day.AttemptCount

		if day.CompletedAt != nil {
			out.Outcome = domainagg.OutcomeAlreadyCompleted
			out.Day = *day
			return nil
		}
		if day.CurrentQuizID == nil || sub.QuizID != *day.CurrentQuizID {
			return PreconditionError("submission is not for the current quiz")
		}

		tr := a.newTransition(plan, at)
		if in.NextMonth > 0 {
			tr.prefetched[in.NextMonth] = in.NextMonthDays
		}

		dayUpdates := map[string]interface{}{}
		recorded := sub.AttemptNumber > day.LastAttemptNumber
		if recorded {
			out.AttemptCount = day.AttemptCount + 1
			dayUpdates["attempt_count"] = out.AttemptCount
			dayUpdates["last_attempt_number"] = sub.AttemptNumber
			dayUpdates["last_score"] = sub.Score
		}

		if !sub.Passed {
			out.Outcome = domainagg.OutcomeRetryRequired
			if !recorded {
				out.Day = *day
				return nil
			}
			if err := a.deps.Days.UpdateFields(dbc, day.ID, dayUpdates); err != nil {
				return err
			}
			tr.planUpdates["last_activity_at"] = at
			if err := a.commitTransition(dbc, tr); err != nil {
				return err
			}
			out.RemediationDue = out.AttemptCount >= a.deps.RemediationAfterAttempts
		} else {
			passed, err := a.deps.Submissions.PassedDayIDs(dbc, plan.ID)
			if err != nil {
				return err
			}
			eff, err := a.acknowledgeDay(dbc, tr, day, sub.Score, dayUpdates, passed)
			if err != nil {
				return err
			}
			tr.planUpdates["last_activity_at"] = at
			if err := a.commitTransition(dbc, tr); err != nil {
				return err
			}
			out.Outcome = domainagg.OutcomeCompleted
			out.MonthCompleted = eff.monthCompleted
			out.PlanCompleted = eff.planCompleted
			out.ActivatedMonth = eff.activated
		}

		fresh, err := a.deps.Days.GetByID(dbc, day.ID)
		if err != nil {
			return err
		}
		out.Plan = *tr.plan
		out.Day = *fresh
		out.Events = tr.eventValues()
		return nil
	})
	return out, err
}

func (a *progressionAggregate) RegenerateQuiz(ctx context.Context, in domainagg.RegenerateQuizInput) (domainagg.RegenerateQuizResult, error) {
	const op = "Learning.Progression.RegenerateQuiz"
	var out domainagg.RegenerateQuizResult
	if err := validateDayRef(op, in.DayRef); err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.RegeneratedAt)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.RegenerateQuizResult{}
		plan, month, day, err := a.lockDay(dbc, in.DayRef)
		if err != nil {
			return err
		}
		if month.IsLocked() {
			return PreconditionError("month is locked")
		}
		prev := day.CurrentQuizID
		gen := in.Quiz
		quiz, err := a.createQuiz(dbc, plan, day, &gen, prev != nil, at)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := a.deps.Quizzes.MarkSuperseded(dbc, *prev, at); err != nil {
				return err
			}
		}
		if err := a.deps.Days.UpdateFields(dbc, day.ID, map[string]interface{}{"current_quiz_id": quiz.ID}); err != nil {
			return err
		}
		tr := a.newTransition(plan, at)
		if err := a.commitTransition(dbc, tr); err != nil {
			return err
		}
		out.Quiz = *quiz
		out.PreviousID = prev
		return nil
	})
	return out, err
}

func (a *progressionAggregate) EnsureDayMaterials(ctx context.Context, in domainagg.EnsureDayMaterialsInput) (domainagg.EnsureDayMaterialsResult, error) {
	const op = "Learning.Progression.EnsureDayMaterials"
	var out domainagg.EnsureDayMaterialsResult
	if err := validateDayRef(op, in.DayRef); err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := time.Now().UTC()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.EnsureDayMaterialsResult{}
		plan, month, day, err := a.lockDay(dbc, in.DayRef)
		if err != nil {
			return err
		}
		if !month.IsLocked() {
			updates := map[string]interface{}{}
			if day.CurrentQuizID == nil && in.Quiz != nil {
				quiz, err := a.createQuiz(dbc, plan, day, in.Quiz, false, at)
				if err != nil {
					return err
				}
				updates["current_quiz_id"] = quiz.ID
				out.QuizCreated = true
			}
			if !day.HasContent() && in.Lesson != nil {
				enc, err := types.EncodeLesson(*in.Lesson)
				if err != nil {
					return err
				}
				updates["content"] = enc
				out.LessonSet = true
			}
			if len(updates) > 0 {
				if err := a.deps.Days.UpdateFields(dbc, day.ID, updates); err != nil {
					return err
				}
				if day, err = a.deps.Days.GetByID(dbc, day.ID); err != nil {
					return err
				}
			}
		}
		out.Day = *day
		if day.CurrentQuizID != nil {
			quiz, err := a.deps.Quizzes.GetByID(dbc, *day.CurrentQuizID)
			if err != nil {
				return err
			}
			out.Quiz = quiz
		}
		return nil
	})
	return out, err
}

func (a *progressionAggregate) MaterializeMonthDays(ctx context.Context, in domainagg.MaterializeMonthDaysInput) (domainagg.MaterializeMonthDaysResult, error) {
	const op = "Learning.Progression.MaterializeMonthDays"
	var out domainagg.MaterializeMonthDaysResult
	if err := validateDayRef(op, domainagg.DayRef{LearnerID: in.LearnerID, PlanID: in.PlanID, Month: in.Month, Day: 1}); err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.MaterializeMonthDaysResult{}
		plan, month, err := a.lockPlanMonth(dbc, domainagg.DayRef{LearnerID: in.LearnerID, PlanID: in.PlanID, Month: in.Month})
		if err != nil {
			return err
		}
		if !month.DaysGenerated {
			if _, err := a.materialize(dbc, plan, month, in.Days); err != nil {
				return err
			}
			out.Created = true
			if month, err = a.deps.Months.GetByPlanIndex(dbc, plan.ID, month.Index); err != nil {
				return err
			}
		}
		days, err := a.deps.Days.ListByMonth(dbc, plan.ID, month.Index)
		if err != nil {
			return err
		}
		out.Month = *month
		for _, d := range days {
			out.Days = append(out.Days, *d)
		}
		return nil
	})
	return out, err
}

func (a *progressionAggregate) ApplyRemediation(ctx context.Context, in domainagg.ApplyRemediationInput) (domainagg.ApplyRemediationResult, error) {
	const op = "Learning.Progression.ApplyRemediation"
	var out domainagg.ApplyRemediationResult
	if in.PlanID == uuid.Nil || in.DayID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing plan_id or day_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "progression aggregate repos not configured", nil)
	}
	at := nowOr(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.ApplyRemediationResult{}
		if _, err := a.lockPlan(dbc, in.PlanID); err != nil {
			return err
		}
		day, err := a.deps.Days.GetByID(dbc, in.DayID)
		if err != nil {
			return err
		}
		if day == nil || day.PlanID != in.PlanID {
			return NotFoundError("day not found")
		}
		// A completed day or a newer failed attempt makes this remediation stale.
		if day.CompletedAt != nil || (in.Attempt > 0 && day.AttemptCount > in.Attempt) {
			out.Day = *day
			return nil
		}
		lesson := in.Lesson
		enc, err := types.EncodeLesson(lesson)
		if err != nil {
			return err
		}
		if err := a.deps.Days.UpdateFields(dbc, day.ID, map[string]interface{}{
			"content":                enc,
			"content_revision":       day.ContentRevision + 1,
			"content_regenerated_at": at,
		}); err != nil {
			return err
		}
		fresh, err := a.deps.Days.GetByID(dbc, day.ID)
		if err != nil {
			return err
		}
		out.Day = *fresh
		out.Applied = true
		return nil
	})
	return out, err
}

// transition accumulates the plan update and outbox rows of one gating write.
type transition struct {
	plan        *types.Plan
	at          time.Time
	planUpdates map[string]interface{}
	events      []*types.ProgressionEvent
	healed      []domainagg.DayKey
	prefetched  map[int][]types.DayOutline
}

func (a *progressionAggregate) newTransition(plan *types.Plan, at time.Time) *transition {
	return &transition{
		plan:        plan,
		at:          at,
		planUpdates: map[string]interface{}{},
		prefetched:  map[int][]types.DayOutline{},
	}
}

func (t *transition) emit(kind types.EventType, month, day int, score *int, concept string, payload map[string]any) {
	var raw datatypes.JSON
	if len(payload) > 0 {
		if b, err := json.Marshal(payload); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	t.events = append(t.events, &types.ProgressionEvent{
		ID:         uuid.New(),
		PlanID:     t.plan.ID,
		LearnerID:  t.plan.LearnerID,
		Type:       kind,
		Sequence:   len(t.events),
		MonthIndex: month,
		DayIndex:   day,
		Score:      score,
		Concept:    concept,
		Payload:    raw,
		OccurredAt: t.at,
	})
}

func (t *transition) eventValues() []types.ProgressionEvent {
	out := make([]types.ProgressionEvent, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, *e)
	}
	return out
}

// commitTransition compares-and-sets the plan version, then writes the outbox.
func (a *progressionAggregate) commitTransition(dbc dbctx.Context, t *transition) error {
	updates := t.planUpdates
	updates["updated_at"] = t.at
	if err := a.deps.Base.CASGuard.BumpPlanVersion(dbc, t.plan, updates); err != nil {
		return err
	}
	if len(t.events) > 0 {
		if _, err := a.deps.Events.Create(dbc, t.events); err != nil {
			return err
		}
	}
	fresh, err := a.deps.Plans.GetByID(dbc, t.plan.ID)
	if err != nil {
		return err
	}
	t.plan = fresh
	return nil
}

type completionEffects struct {
	monthCompleted bool
	planCompleted  bool
	activated      int
}

// acknowledgeDay stamps a passed day as completed and cascades month and plan
// transitions. passed is the ledger view and is updated in place.
func (a *progressionAggregate) acknowledgeDay(dbc dbctx.Context, t *transition, day *types.Day, score int, extra map[string]interface{}, passed map[uuid.UUID]bool) (completionEffects, error) {
	var eff completionEffects
	best := score
	if day.BestScore != nil && *day.BestScore > best {
		best = *day.BestScore
	}
	updates := map[string]interface{}{
		"completed_at": t.at,
		"best_score":   best,
	}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := a.deps.Days.UpdateFieldsWhere(dbc, day.ID, "completed_at IS NULL", nil, updates)
	if err != nil {
		return eff, err
	}
	if !ok {
		return eff, ConflictError("day was completed concurrently")
	}
	at := t.at
	day.CompletedAt = &at
	day.BestScore = &best
	passed[day.ID] = true

	s := score
	t.emit(types.EventDayCompleted, day.MonthIndex, day.Index, &s, day.Concept, nil)
	return a.cascadeMonth(dbc, t, day.MonthIndex, passed)
}

func (a *progressionAggregate) cascadeMonth(dbc dbctx.Context, t *transition, monthIndex int, passed map[uuid.UUID]bool) (completionEffects, error) {
	var eff completionEffects
	month, err := a.deps.Months.GetByPlanIndex(dbc, t.plan.ID, monthIndex)
	if err != nil {
		return eff, err
	}
	if month == nil {
		return eff, InvariantError("day belongs to a missing month")
	}
	if month.IsCompleted() {
		return eff, nil
	}
	days, err := a.deps.Days.ListByMonth(dbc, t.plan.ID, monthIndex)
	if err != nil {
		return eff, err
	}
	if len(days) == 0 || len(days) < month.DaysTotal {
		return eff, nil
	}
	for _, d := range days {
		if !passed[d.ID] || d.CompletedAt == nil {
			return eff, nil
		}
	}
	if err := a.deps.Base.CASGuard.TransitionMonth(dbc, month, types.MonthCompleted, map[string]any{
		"completed_at": t.at,
		"updated_at":   t.at,
	}); err != nil {
		return eff, err
	}
	eff.monthCompleted = true
	t.emit(types.EventMonthCompleted, month.Index, 0, nil, "", map[string]any{"title": month.Title})

	months, err := a.deps.Months.ListByPlan(dbc, t.plan.ID)
	if err != nil {
		return eff, err
	}
	var next *types.Month
	for _, m := range months {
		if m.Index != month.Index && !m.IsCompleted() {
			next = m
			break
		}
	}
	if next == nil {
		t.planUpdates["status"] = types.PlanCompleted
		t.planUpdates["completed_at"] = t.at
		t.emit(types.EventPlanCompleted, 0, 0, nil, "", map[string]any{"title": t.plan.Title})
		eff.planCompleted = true
		return eff, nil
	}

	if !next.DaysGenerated {
		if _, err := a.materialize(dbc, t.plan, next, t.prefetched[next.Index]); err != nil {
			return eff, err
		}
	}
	if err := a.deps.Base.CASGuard.TransitionMonth(dbc, next, types.MonthActive, map[string]any{
		"started_at": t.at,
		"updated_at": t.at,
	}); err != nil {
		return eff, err
	}
	if err := a.deps.Months.LockAfter(dbc, t.plan.ID, next.Index); err != nil {
		return eff, err
	}
	eff.activated = next.Index
	return eff, nil
}

// healPreviousDay applies the completion effects of a passed but unacknowledged
// previous day, or refuses the start when the previous day has no passing submission.
func (a *progressionAggregate) healPreviousDay(dbc dbctx.Context, t *transition, day *types.Day, passed map[uuid.UUID]bool) error {
	prev, err := a.deps.Days.Get(dbc, day.PlanID, day.MonthIndex, day.Index-1)
	if err != nil {
		return err
	}
	if prev == nil {
		return InvariantError("previous day is missing")
	}
	if !passed[prev.ID] {
		return PreconditionError("complete previous day first")
	}
	if prev.CompletedAt != nil {
		return nil
	}
	return a.heal(dbc, t, prev, passed)
}

// unlockByHealingPreviousMonth lets day 1 of a locked month start when every day
// of the previous month has a passing submission.
func (a *progressionAggregate) unlockByHealingPreviousMonth(dbc dbctx.Context, t *transition, month *types.Month, dayIndex int, passed map[uuid.UUID]bool) error {
	if dayIndex != 1 || month.Index <= 1 {
		return PreconditionError("month is locked")
	}
	prevMonth, err := a.deps.Months.GetByPlanIndex(dbc, t.plan.ID, month.Index-1)
	if err != nil {
		return err
	}
	if prevMonth == nil || !prevMonth.DaysGenerated {
		return PreconditionError("month is locked")
	}
	prevDays, err := a.deps.Days.ListByMonth(dbc, t.plan.ID, prevMonth.Index)
	if err != nil {
		return err
	}
	if len(prevDays) == 0 {
		return PreconditionError("month is locked")
	}
	for _, d := range prevDays {
		if !passed[d.ID] {
			return PreconditionError("month is locked")
		}
	}
	for _, d := range prevDays {
		if d.CompletedAt != nil {
			continue
		}
		if err := a.heal(dbc, t, d, passed); err != nil {
			return err
		}
	}
	return nil
}

func (a *progressionAggregate) heal(dbc dbctx.Context, t *transition, day *types.Day, passed map[uuid.UUID]bool) error {
	latest, err := a.deps.Submissions.LatestPassing(dbc, day.ID)
	if err != nil {
		return err
	}
	if latest == nil {
		return PreconditionError("complete previous day first")
	}
	if _, err := a.acknowledgeDay(dbc, t, day, latest.Score, nil, passed); err != nil {
		return err
	}
	t.healed = append(t.healed, domainagg.DayKey{Month: day.MonthIndex, Day: day.Index})
	return nil
}

func (a *progressionAggregate) createQuiz(dbc dbctx.Context, plan *types.Plan, day *types.Day, gen *domainagg.GeneratedQuiz, retake bool, at time.Time) (*types.Quiz, error) {
	source := types.QuizSourceFallback
	var questions []types.Question
	var focus []string
	if gen != nil {
		questions = validQuestions(gen.Questions)
		focus = gen.ProblemFocus
		if gen.Source != "" {
			source = gen.Source
		}
	}
	if len(questions) < types.MinQuizQuestions {
		questions = types.FallbackQuiz(day.Concept, a.deps.FallbackQuizQuestions)
		source = types.QuizSourceFallback
	}
	title := fmt.Sprintf("Day %d Quiz - %s", day.Index, day.Concept)
	if retake {
		title += " (Retake)"
	}
	quiz := &types.Quiz{
		PlanID:        plan.ID,
		DayID:         day.ID,
		MonthIndex:    day.MonthIndex,
		DayIndex:      day.Index,
		Title:         title,
		Questions:     datatypes.JSONSlice[types.Question](questions),
		RequiredScore: day.EffectiveThreshold(),
		ProblemFocus:  datatypes.JSONSlice[string](nonNilStrings(focus)),
		IsRetake:      retake,
		Source:        source,
		CreatedAt:     at,
	}
	if err := a.deps.Quizzes.Create(dbc, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (a *progressionAggregate) materialize(dbc dbctx.Context, plan *types.Plan, month *types.Month, outlines []types.DayOutline) ([]*types.Day, error) {
	if len(outlines) == 0 {
		outlines = types.FallbackDayOutlines(month.Title, month.Topics, month.DaysTotal)
	}
	rows := make([]*types.Day, 0, len(outlines))
	for i, o := range outlines {
		o = o.Normalize()
		concept := o.Concept
		if concept == "" {
			concept = fmt.Sprintf("Day %d Learning Objective", i+1)
		}
		rows = append(rows, &types.Day{
			PlanID:              plan.ID,
			MonthID:             month.ID,
			MonthIndex:          month.Index,
			Index:               i + 1,
			Concept:             concept,
			TimeEstimateMinutes: o.TimeEstimateMinutes,
			Threshold:           o.Threshold,
		})
	}
	if err := a.deps.Days.Create(dbc, rows); err != nil {
		return nil, err
	}
	if err := a.deps.Months.UpdateFields(dbc, month.ID, map[string]interface{}{
		"days_generated": true,
		"days_total":     len(rows),
	}); err != nil {
		return nil, err
	}
	month.DaysGenerated = true
	month.DaysTotal = len(rows)
	return rows, nil
}

func (a *progressionAggregate) lockPlan(dbc dbctx.Context, planID uuid.UUID) (*types.Plan, error) {
	plan, err := a.deps.Plans.LockByID(dbc, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("plan not found")
		}
		return nil, err
	}
	return plan, nil
}

func (a *progressionAggregate) lockPlanMonth(dbc dbctx.Context, ref domainagg.DayRef) (*types.Plan, *types.Month, error) {
	plan, err := a.lockPlan(dbc, ref.PlanID)
	if err != nil {
		return nil, nil, err
	}
	if plan.LearnerID != ref.LearnerID {
		return nil, nil, NotFoundError("plan not found")
	}
	if err := RequireExpectedVersion(plan.Version, ref.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	month, err := a.deps.Months.GetByPlanIndex(dbc, plan.ID, ref.Month)
	if err != nil {
		return nil, nil, err
	}
	if month == nil {
		return nil, nil, NotFoundError("month not found")
	}
	return plan, month, nil
}

func (a *progressionAggregate) lockDay(dbc dbctx.Context, ref domainagg.DayRef) (*types.Plan, *types.Month, *types.Day, error) {
	plan, month, err := a.lockPlanMonth(dbc, ref)
	if err != nil {
		return nil, nil, nil, err
	}
	day, err := a.deps.Days.Get(dbc, plan.ID, month.Index, ref.Day)
	if err != nil {
		return nil, nil, nil, err
	}
	if day == nil {
		return nil, nil, nil, NotFoundError("day not found")
	}
	return plan, month, day, nil
}

func validateDayRef(op string, ref domainagg.DayRef) error {
	switch {
	case ref.LearnerID == uuid.Nil:
		return domainagg.NewError(domainagg.CodeValidation, op, "missing learner_id", nil)
	case ref.PlanID == uuid.Nil:
		return domainagg.NewError(domainagg.CodeValidation, op, "missing plan_id", nil)
	case ref.Month < 1:
		return domainagg.NewError(domainagg.CodeValidation, op, "month must be >= 1", nil)
	case ref.Day < 1:
		return domainagg.NewError(domainagg.CodeValidation, op, "day must be >= 1", nil)
	}
	return nil
}

func validQuestions(in []types.Question) []types.Question {
	out := make([]types.Question, 0, len(in))
	for _, q := range in {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) != types.OptionsPerQuestion {
			continue
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= types.OptionsPerQuestion {
			continue
		}
		out = append(out, q)
	}
	return out
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
