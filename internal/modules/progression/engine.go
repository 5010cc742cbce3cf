package progression

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/modules/progression/content"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

const retakeMinCoverage = 0.6

type CreatePlanInput struct {
	LearnerID uuid.UUID
	Title     string
	Learner   types.LearnerProfile
	Months    []domainagg.MonthInput
}

// CreatePlan persists a new plan. When month 1 comes without day outlines they
// are generated before the write.
func (u Usecases) CreatePlan(ctx context.Context, in CreatePlanInput) (domainagg.CreatePlanResult, error) {
	const op = "Learning.Progression.CreatePlan"
	if in.LearnerID == uuid.Nil {
		return domainagg.CreatePlanResult{}, invalid(op, "missing learner_id")
	}
	if strings.TrimSpace(in.Title) == "" {
		return domainagg.CreatePlanResult{}, invalid(op, "missing title")
	}
	if len(in.Months) == 0 {
		return domainagg.CreatePlanResult{}, invalid(op, "a plan needs at least one month")
	}
	if err := u.deps.Limits.Check(op, in.Months); err != nil {
		return domainagg.CreatePlanResult{}, err
	}
	months := append([]domainagg.MonthInput(nil), in.Months...)
	if len(months[0].Days) == 0 {
		first := months[0]
		months[0].Days = u.deps.Content.MonthDays(ctx, content.MonthDaysRequest{
			PlanTitle:   in.Title,
			MonthIndex:  1,
			MonthTitle:  first.Title,
			Description: first.Description,
			Goals:       first.Goals,
			Topics:      first.Topics,
			Learner:     in.Learner,
			Count:       first.DaysTotal,
		})
	}
	res, err := u.deps.Aggregate.CreatePlan(ctx, domainagg.CreatePlanInput{
		LearnerID: in.LearnerID,
		Title:     in.Title,
		Learner:   in.Learner,
		Months:    months,
		CreatedAt: u.deps.Now(),
	})
	if err != nil {
		return res, err
	}
	u.deps.Log.Info("plan created", "plan_id", res.Plan.ID, "learner_id", in.LearnerID, "months", len(res.Months))
	return res, nil
}

// startPrep is content generated before StartDay takes the plan lock.
type startPrep struct {
	quiz      *domainagg.GeneratedQuiz
	lesson    *types.LessonContent
	monthDays []types.DayOutline
}

// StartDay opens a day for study. Content is prepared first; gating, healing
// and the DayStarted event happen in one write under the plan lock.
func (u Usecases) StartDay(ctx context.Context, in DayAddress) (domainagg.StartDayResult, error) {
	const op = "Learning.Progression.StartDay"
	if err := in.validate(op); err != nil {
		return domainagg.StartDayResult{}, err
	}
	prep, err := u.prepareStart(ctx, in)
	if err != nil {
		return domainagg.StartDayResult{}, err
	}

	var res domainagg.StartDayResult
	err = u.withPlanLock(ctx, in.LearnerID, in.PlanID, func() error {
		var aerr error
		res, aerr = u.deps.Aggregate.StartDay(ctx, domainagg.StartDayInput{
			DayRef:    in.ref(),
			Quiz:      prep.quiz,
			Lesson:    prep.lesson,
			MonthDays: prep.monthDays,
			StartedAt: u.deps.Now(),
		})
		return aerr
	})
	if err != nil {
		return res, err
	}
	if len(res.Healed) > 0 {
		u.deps.Log.Info("healed unacknowledged completions", "plan_id", in.PlanID, "count", len(res.Healed))
	}
	u.deps.Publisher.Publish(ctx, res.Events)
	return res, nil
}

// prepareStart reads the plan without locks and generates only what the write
// is going to need. A day that cannot be started gets nothing generated; the
// aggregate reports the reason.
func (u Usecases) prepareStart(ctx context.Context, in DayAddress) (startPrep, error) {
	const op = "Learning.Progression.StartDay"
	var prep startPrep
	dbc := dbctx.Background(ctx)

	plan, err := u.deps.Plans.GetForLearner(dbc, in.LearnerID, in.PlanID)
	if err != nil {
		return prep, internal(op, err)
	}
	if plan == nil {
		return prep, nil
	}
	month, err := u.deps.Months.GetByPlanIndex(dbc, plan.ID, in.Month)
	if err != nil {
		return prep, internal(op, err)
	}
	if month == nil {
		return prep, nil
	}
	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return prep, internal(op, err)
	}
	learner := plan.Learner.Data()

	concept := ""
	needQuiz, needLesson := true, true
	if month.IsLocked() {
		if in.Day != 1 || month.Index <= 1 {
			return prep, nil
		}
		ok, err := u.monthFullyPassed(dbc, plan.ID, month.Index-1, passed)
		if err != nil {
			return prep, internal(op, err)
		}
		if !ok {
			return prep, nil
		}
		if !month.DaysGenerated {
			prep.monthDays = u.deps.Content.MonthDays(ctx, monthDaysRequest(plan, month))
			if len(prep.monthDays) == 0 {
				return prep, nil
			}
			concept = prep.monthDays[0].Concept
		}
	}
	if concept == "" {
		day, err := u.deps.Days.Get(dbc, plan.ID, month.Index, in.Day)
		if err != nil {
			return prep, internal(op, err)
		}
		if day == nil {
			return prep, nil
		}
		if day.Index > 1 {
			prev, err := u.deps.Days.Get(dbc, plan.ID, month.Index, day.Index-1)
			if err != nil {
				return prep, internal(op, err)
			}
			if prev == nil || !passed[prev.ID] {
				return prep, nil
			}
		}
		concept = day.Concept
		needQuiz = day.CurrentQuizID == nil
		needLesson = !day.HasContent()
	}
	prep.quiz, prep.lesson = u.generateMaterials(ctx, concept, learner, needQuiz, needLesson)
	return prep, nil
}

// generateMaterials produces the quiz and lesson for a day concurrently.
func (u Usecases) generateMaterials(ctx context.Context, concept string, learner types.LearnerProfile, needQuiz, needLesson bool) (*domainagg.GeneratedQuiz, *types.LessonContent) {
	var (
		quiz   *domainagg.GeneratedQuiz
		lesson *types.LessonContent
	)
	g, gctx := errgroup.WithContext(ctx)
	if needQuiz {
		g.Go(func() error {
			res := u.deps.Content.Quiz(gctx, content.QuizRequest{
				Concept: concept,
				Learner: learner,
				Count:   u.deps.QuizQuestions,
			})
			quiz = &domainagg.GeneratedQuiz{Questions: res.Questions, Source: res.Source, ProblemFocus: res.ProblemFocus}
			return nil
		})
	}
	if needLesson {
		g.Go(func() error {
			l := u.deps.Content.Lesson(gctx, content.LessonRequest{Concept: concept, Learner: learner})
			lesson = &l
			return nil
		})
	}
	_ = g.Wait()
	return quiz, lesson
}

func (u Usecases) monthFullyPassed(dbc dbctx.Context, planID uuid.UUID, month int, passed map[uuid.UUID]bool) (bool, error) {
	if month < 1 {
		return false, nil
	}
	days, err := u.deps.Days.ListByMonth(dbc, planID, month)
	if err != nil {
		return false, err
	}
	if len(days) == 0 {
		return false, nil
	}
	for _, d := range days {
		if !passed[d.ID] {
			return false, nil
		}
	}
	return true, nil
}

func monthDaysRequest(plan *types.Plan, month *types.Month) content.MonthDaysRequest {
	return content.MonthDaysRequest{
		PlanTitle:   plan.Title,
		MonthIndex:  month.Index,
		MonthTitle:  month.Title,
		Description: month.Description,
		Goals:       month.Goals,
		Topics:      month.Topics,
		Learner:     plan.Learner.Data(),
		Count:       month.DaysTotal,
	}
}

type SubmitQuizInput struct {
	DayAddress
	Answers          []int
	TimeTakenSeconds *int
}

// SubmitQuiz grades answers against the day's current quiz. It records an
// attempt and never advances progression.
func (u Usecases) SubmitQuiz(ctx context.Context, in SubmitQuizInput) (types.Submission, error) {
	const op = "Learning.Progression.SubmitQuiz"
	if err := in.validate(op); err != nil {
		return types.Submission{}, err
	}
	if len(in.Answers) == 0 {
		return types.Submission{}, invalid(op, "answers are required")
	}
	var res domainagg.SubmitQuizResult
	err := u.withPlanLock(ctx, in.LearnerID, in.PlanID, func() error {
		var aerr error
		res, aerr = u.deps.Aggregate.SubmitQuiz(ctx, domainagg.SubmitQuizInput{
			DayRef:           in.ref(),
			Answers:          in.Answers,
			TimeTakenSeconds: in.TimeTakenSeconds,
			SubmittedAt:      u.deps.Now(),
		})
		return aerr
	})
	if err != nil {
		return types.Submission{}, err
	}
	observability.Current().IncSubmission(res.Submission.Passed)
	return res.Submission, nil
}

type CompleteDayInput struct {
	DayAddress
	SubmissionID uuid.UUID
}

// CompleteDay acknowledges a submission. Passing submissions cascade month and
// plan completion; failing ones count an attempt and may schedule remediation.
func (u Usecases) CompleteDay(ctx context.Context, in CompleteDayInput) (domainagg.CompleteDayResult, error) {
	const op = "Learning.Progression.CompleteDay"
	if err := in.validate(op); err != nil {
		return domainagg.CompleteDayResult{}, err
	}
	if in.SubmissionID == uuid.Nil {
		return domainagg.CompleteDayResult{}, invalid(op, "missing submission_id")
	}
	nextMonth, nextDays, err := u.prepareNextMonth(ctx, in)
	if err != nil {
		return domainagg.CompleteDayResult{}, err
	}

	var res domainagg.CompleteDayResult
	err = u.withPlanLock(ctx, in.LearnerID, in.PlanID, func() error {
		var aerr error
		res, aerr = u.deps.Aggregate.CompleteDay(ctx, domainagg.CompleteDayInput{
			DayRef:        in.ref(),
			SubmissionID:  in.SubmissionID,
			NextMonth:     nextMonth,
			NextMonthDays: nextDays,
			CompletedAt:   u.deps.Now(),
		})
		return aerr
	})
	if err != nil {
		return res, err
	}
	u.deps.Publisher.Publish(ctx, res.Events)

	switch {
	case res.PlanCompleted:
		u.deps.Log.Info("plan completed", "plan_id", in.PlanID, "learner_id", in.LearnerID)
	case res.MonthCompleted:
		u.deps.Log.Info("month completed", "plan_id", in.PlanID, "month", in.Month, "activated", res.ActivatedMonth)
	}
	if res.RemediationDue {
		req := RemediationRequest{
			LearnerID: in.LearnerID,
			PlanID:    in.PlanID,
			DayID:     res.Day.ID,
			Month:     res.Day.MonthIndex,
			Day:       res.Day.Index,
			Attempt:   res.AttemptCount,
		}
		if derr := u.deps.Remediation.Dispatch(ctx, req); derr != nil {
			u.deps.Log.Warn("remediation dispatch failed", "plan_id", in.PlanID, "day_id", res.Day.ID, "error", derr)
		}
	}
	return res, nil
}

// prepareNextMonth generates the next month's days when this completion is
// about to finish the current month and that month has none yet.
func (u Usecases) prepareNextMonth(ctx context.Context, in CompleteDayInput) (int, []types.DayOutline, error) {
	const op = "Learning.Progression.CompleteDay"
	dbc := dbctx.Background(ctx)
	sub, err := u.deps.Submissions.GetByID(dbc, in.SubmissionID)
	if err != nil {
		return 0, nil, internal(op, err)
	}
	if sub == nil || !sub.Passed || sub.PlanID != in.PlanID || sub.MonthIndex != in.Month || sub.DayIndex != in.Day {
		return 0, nil, nil
	}
	plan, err := u.deps.Plans.GetForLearner(dbc, in.LearnerID, in.PlanID)
	if err != nil {
		return 0, nil, internal(op, err)
	}
	if plan == nil {
		return 0, nil, nil
	}
	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return 0, nil, internal(op, err)
	}
	days, err := u.deps.Days.ListByMonth(dbc, plan.ID, in.Month)
	if err != nil {
		return 0, nil, internal(op, err)
	}
	for _, d := range days {
		if d.ID != sub.DayID && !passed[d.ID] {
			return 0, nil, nil
		}
	}
	months, err := u.deps.Months.ListByPlan(dbc, plan.ID)
	if err != nil {
		return 0, nil, internal(op, err)
	}
	for _, m := range months {
		if m.Index <= in.Month || m.IsCompleted() {
			continue
		}
		if m.DaysGenerated {
			return 0, nil, nil
		}
		return m.Index, u.deps.Content.MonthDays(ctx, monthDaysRequest(plan, m)), nil
	}
	return 0, nil, nil
}

// SubmitOutcome pairs a graded submission with its acknowledgement when the
// caller asked for both in one request.
type SubmitOutcome struct {
	Submission types.Submission
	Completion *domainagg.CompleteDayResult
}

// SubmitAndComplete grades and then immediately acknowledges the submission.
// A failure while acknowledging still returns the recorded submission.
func (u Usecases) SubmitAndComplete(ctx context.Context, in SubmitQuizInput) (SubmitOutcome, error) {
	sub, err := u.SubmitQuiz(ctx, in)
	if err != nil {
		return SubmitOutcome{}, err
	}
	out := SubmitOutcome{Submission: sub}
	addr := in.DayAddress
	// The submission bumped nothing, but a concurrent write may have.
	addr.ExpectedVersion = nil
	res, err := u.CompleteDay(ctx, CompleteDayInput{DayAddress: addr, SubmissionID: sub.ID})
	if err != nil {
		return out, err
	}
	out.Completion = &res
	return out, nil
}

// RegenerateQuiz replaces the day's current quiz with a retake aimed at the
// learner's most-missed questions.
func (u Usecases) RegenerateQuiz(ctx context.Context, in DayAddress) (domainagg.RegenerateQuizResult, []types.ProblemArea, error) {
	const op = "Learning.Progression.RegenerateQuiz"
	if err := in.validate(op); err != nil {
		return domainagg.RegenerateQuizResult{}, nil, err
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.GetForLearner(dbc, in.LearnerID, in.PlanID)
	if err != nil {
		return domainagg.RegenerateQuizResult{}, nil, internal(op, err)
	}
	if plan == nil {
		return domainagg.RegenerateQuizResult{}, nil, notFound(op, "plan not found")
	}
	day, err := u.deps.Days.Get(dbc, plan.ID, in.Month, in.Day)
	if err != nil {
		return domainagg.RegenerateQuizResult{}, nil, internal(op, err)
	}
	if day == nil {
		return domainagg.RegenerateQuizResult{}, nil, notFound(op, "day not found")
	}
	areas, err := u.dayProblemAreas(dbc, day)
	if err != nil {
		return domainagg.RegenerateQuizResult{}, nil, internal(op, err)
	}
	passedAreas := areas
	if len(passedAreas) > DefaultProblemAreasPassed {
		passedAreas = passedAreas[:DefaultProblemAreasPassed]
	}
	gen := u.deps.Content.Quiz(ctx, content.QuizRequest{
		Concept:      day.Concept,
		Learner:      plan.Learner.Data(),
		Count:        u.deps.RetakeQuestions,
		ProblemAreas: passedAreas,
		MinCoverage:  retakeMinCoverage,
	})

	var res domainagg.RegenerateQuizResult
	err = u.withPlanLock(ctx, in.LearnerID, in.PlanID, func() error {
		var aerr error
		res, aerr = u.deps.Aggregate.RegenerateQuiz(ctx, domainagg.RegenerateQuizInput{
			DayRef:        in.ref(),
			Quiz:          domainagg.GeneratedQuiz{Questions: gen.Questions, Source: gen.Source, ProblemFocus: gen.ProblemFocus},
			RegeneratedAt: u.deps.Now(),
		})
		return aerr
	})
	if err != nil {
		return res, nil, err
	}
	u.deps.Log.Info("quiz regenerated", "plan_id", in.PlanID, "month", in.Month, "day", in.Day,
		"problem_areas", len(areas), "source", gen.Source)
	return res, areas, nil
}
