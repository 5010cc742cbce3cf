package progression

import (
	"context"
	"math"

	"github.com/google/uuid"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

// ListPlans returns the learner's plans, most recently active first.
func (u Usecases) ListPlans(ctx context.Context, learnerID uuid.UUID) ([]PlanSummary, error) {
	const op = "Learning.Progression.ListPlans"
	if learnerID == uuid.Nil {
		return nil, invalid(op, "missing learner_id")
	}
	dbc := dbctx.Background(ctx)
	plans, err := u.deps.Plans.ListByLearner(dbc, learnerID)
	if err != nil {
		return nil, internal(op, err)
	}
	if len(plans) == 0 {
		return []PlanSummary{}, nil
	}
	ids := make([]uuid.UUID, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	months, err := u.deps.Months.ListByPlans(dbc, ids)
	if err != nil {
		return nil, internal(op, err)
	}
	byPlan := map[uuid.UUID][]*types.Month{}
	for _, m := range months {
		byPlan[m.PlanID] = append(byPlan[m.PlanID], m)
	}

	out := make([]PlanSummary, 0, len(plans))
	for _, p := range plans {
		passed, err := u.deps.Submissions.PassedDayIDs(dbc, p.ID)
		if err != nil {
			return nil, internal(op, err)
		}
		s := PlanSummary{Plan: *p, DaysCompleted: len(passed)}
		for _, m := range byPlan[p.ID] {
			s.DaysTotal += m.DaysTotal
			if m.IsActive() {
				s.ActiveMonth = m.Index
			}
		}
		s.Percent = percent(s.DaysCompleted, s.DaysTotal)
		out = append(out, s)
	}
	return out, nil
}

// GetPlan returns the full curriculum snapshot and the learner's cursor in it.
func (u Usecases) GetPlan(ctx context.Context, learnerID, planID uuid.UUID) (PlanSnapshot, error) {
	const op = "Learning.Progression.GetPlan"
	if learnerID == uuid.Nil || planID == uuid.Nil {
		return PlanSnapshot{}, invalid(op, "missing learner_id or plan_id")
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.GetForLearner(dbc, learnerID, planID)
	if err != nil {
		return PlanSnapshot{}, internal(op, err)
	}
	if plan == nil {
		return PlanSnapshot{}, notFound(op, "plan not found")
	}
	months, err := u.deps.Months.ListByPlan(dbc, plan.ID)
	if err != nil {
		return PlanSnapshot{}, internal(op, err)
	}
	days, err := u.deps.Days.ListByPlan(dbc, plan.ID)
	if err != nil {
		return PlanSnapshot{}, internal(op, err)
	}
	passed, err := u.deps.Submissions.PassedDayIDs(dbc, plan.ID)
	if err != nil {
		return PlanSnapshot{}, internal(op, err)
	}
	byMonth := groupDays(days)

	out := PlanSnapshot{Plan: *plan, Months: make([]MonthSnapshot, 0, len(months))}
	for _, m := range months {
		ms := MonthSnapshot{Month: *m, Days: summarizeMonthDays(m, byMonth[m.Index], passed)}
		for _, d := range byMonth[m.Index] {
			if passed[d.ID] {
				ms.DaysCompleted++
			}
		}
		out.Months = append(out.Months, ms)
	}
	cur := DeriveCursor(plan, months, byMonth, passed)
	out.Cursor = &cur
	return out, nil
}

// GetProgressSummary aggregates completion and quiz statistics for a plan.
func (u Usecases) GetProgressSummary(ctx context.Context, learnerID, planID uuid.UUID) (ProgressSummary, error) {
	const op = "Learning.Progression.GetProgressSummary"
	if learnerID == uuid.Nil || planID == uuid.Nil {
		return ProgressSummary{}, invalid(op, "missing learner_id or plan_id")
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.GetForLearner(dbc, learnerID, planID)
	if err != nil {
		return ProgressSummary{}, internal(op, err)
	}
	if plan == nil {
		return ProgressSummary{}, notFound(op, "plan not found")
	}
	months, err := u.deps.Months.ListByPlan(dbc, plan.ID)
	if err != nil {
		return ProgressSummary{}, internal(op, err)
	}
	days, err := u.deps.Days.ListByPlan(dbc, plan.ID)
	if err != nil {
		return ProgressSummary{}, internal(op, err)
	}
	subs, err := u.deps.Submissions.ListByPlan(dbc, plan.ID)
	if err != nil {
		return ProgressSummary{}, internal(op, err)
	}
	passed := map[uuid.UUID]bool{}
	scoreSum := 0
	out := ProgressSummary{PlanID: plan.ID, Months: make([]MonthProgress, 0, len(months))}
	for _, s := range subs {
		out.TotalAttempts++
		scoreSum += s.Score
		if s.Passed {
			out.PassedAttempts++
			passed[s.DayID] = true
		}
	}
	if out.TotalAttempts > 0 {
		out.AverageScore = math.Round(10*float64(scoreSum)/float64(out.TotalAttempts)) / 10
		out.PassRate = percent(out.PassedAttempts, out.TotalAttempts)
	}

	byMonth := groupDays(days)
	for _, m := range months {
		mp := MonthProgress{Index: m.Index, Title: m.Title, Status: m.Status, DaysTotal: m.DaysTotal}
		for _, d := range byMonth[m.Index] {
			if passed[d.ID] {
				mp.DaysCompleted++
			}
		}
		mp.Percent = percent(mp.DaysCompleted, mp.DaysTotal)
		if m.IsCompleted() {
			out.MonthsComplete++
		}
		out.DaysCompleted += mp.DaysCompleted
		out.DaysTotal += mp.DaysTotal
		out.Months = append(out.Months, mp)
	}
	out.Percent = percent(out.DaysCompleted, out.DaysTotal)
	return out, nil
}

// GetQuizStatus reports the state of a day's quiz without generating anything.
func (u Usecases) GetQuizStatus(ctx context.Context, addr DayAddress) (QuizStatus, error) {
	const op = "Learning.Progression.GetQuizStatus"
	if err := addr.validate(op); err != nil {
		return QuizStatus{}, err
	}
	dbc := dbctx.Background(ctx)
	day, quiz, err := u.loadDayQuiz(dbc, op, addr)
	if err != nil {
		return QuizStatus{}, err
	}
	best, err := u.deps.Submissions.BestPassing(dbc, day.ID)
	if err != nil {
		return QuizStatus{}, internal(op, err)
	}
	status, err := u.quizStatus(dbc, day, quiz, best != nil)
	if err != nil {
		return QuizStatus{}, internal(op, err)
	}
	return status, nil
}

// GetQuiz returns the day's current quiz without its answer key.
func (u Usecases) GetQuiz(ctx context.Context, addr DayAddress) (*QuizView, error) {
	const op = "Learning.Progression.GetQuiz"
	if err := addr.validate(op); err != nil {
		return nil, err
	}
	_, quiz, err := u.loadDayQuiz(dbctx.Background(ctx), op, addr)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, notFound(op, "quiz not generated; start the day first")
	}
	return NewQuizView(quiz), nil
}

// ListQuizzes lists the current quiz of every day that has one.
func (u Usecases) ListQuizzes(ctx context.Context, learnerID, planID uuid.UUID) (QuizList, error) {
	const op = "Learning.Progression.ListQuizzes"
	if learnerID == uuid.Nil || planID == uuid.Nil {
		return QuizList{}, invalid(op, "missing learner_id or plan_id")
	}
	dbc := dbctx.Background(ctx)
	plan, err := u.deps.Plans.GetForLearner(dbc, learnerID, planID)
	if err != nil {
		return QuizList{}, internal(op, err)
	}
	if plan == nil {
		return QuizList{}, notFound(op, "plan not found")
	}
	quizzes, err := u.deps.Quizzes.ListCurrentByPlan(dbc, plan.ID)
	if err != nil {
		return QuizList{}, internal(op, err)
	}
	months, err := u.deps.Months.ListByPlan(dbc, plan.ID)
	if err != nil {
		return QuizList{}, internal(op, err)
	}
	days, err := u.deps.Days.ListByPlan(dbc, plan.ID)
	if err != nil {
		return QuizList{}, internal(op, err)
	}
	subs, err := u.deps.Submissions.ListByPlan(dbc, plan.ID)
	if err != nil {
		return QuizList{}, internal(op, err)
	}
	monthTitle := map[int]string{}
	for _, m := range months {
		monthTitle[m.Index] = m.Title
	}
	dayByID := map[uuid.UUID]*types.Day{}
	for _, d := range days {
		dayByID[d.ID] = d
	}
	best := map[uuid.UUID]*types.Submission{}
	for _, s := range subs {
		if !s.Passed {
			continue
		}
		if b := best[s.DayID]; b == nil || s.Score > b.Score {
			best[s.DayID] = s
		}
	}

	out := QuizList{Quizzes: make([]QuizSummary, 0, len(quizzes))}
	for _, q := range quizzes {
		qs := QuizSummary{
			QuizID:         q.ID,
			Title:          q.Title,
			Month:          q.MonthIndex,
			MonthTitle:     monthTitle[q.MonthIndex],
			Day:            q.DayIndex,
			RequiredScore:  q.RequiredScore,
			TotalQuestions: len(q.Questions),
			IsRetake:       q.IsRetake,
			CreatedAt:      q.CreatedAt,
		}
		if d := dayByID[q.DayID]; d != nil {
			qs.Concept = d.Concept
			qs.CompletedAt = d.CompletedAt
		}
		if b := best[q.DayID]; b != nil {
			qs.Completed = true
			score := b.Score
			qs.BestScore = &score
			out.Completed++
		}
		out.Quizzes = append(out.Quizzes, qs)
	}
	out.Total = len(out.Quizzes)
	out.Pending = out.Total - out.Completed
	return out, nil
}

// ListSubmissions returns every graded attempt for a day, oldest first.
func (u Usecases) ListSubmissions(ctx context.Context, addr DayAddress) ([]*types.Submission, error) {
	const op = "Learning.Progression.ListSubmissions"
	if err := addr.validate(op); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	day, _, err := u.loadDayQuiz(dbc, op, addr)
	if err != nil {
		return nil, err
	}
	subs, err := u.deps.Submissions.ListByDay(dbc, day.ID)
	if err != nil {
		return nil, internal(op, err)
	}
	return subs, nil
}

func (u Usecases) loadDayQuiz(dbc dbctx.Context, op string, addr DayAddress) (*types.Day, *types.Quiz, error) {
	plan, err := u.deps.Plans.GetForLearner(dbc, addr.LearnerID, addr.PlanID)
	if err != nil {
		return nil, nil, internal(op, err)
	}
	if plan == nil {
		return nil, nil, notFound(op, "plan not found")
	}
	day, err := u.deps.Days.Get(dbc, plan.ID, addr.Month, addr.Day)
	if err != nil {
		return nil, nil, internal(op, err)
	}
	if day == nil {
		return nil, nil, notFound(op, "day not found")
	}
	if day.CurrentQuizID == nil {
		return day, nil, nil
	}
	quiz, err := u.deps.Quizzes.GetByID(dbc, *day.CurrentQuizID)
	if err != nil {
		return nil, nil, internal(op, err)
	}
	return day, quiz, nil
}

// quizStatus derives a day's quiz status. A passed day is completed no matter
// which quiz the pass was on; failures only count against the current quiz.
func (u Usecases) quizStatus(dbc dbctx.Context, day *types.Day, quiz *types.Quiz, dayPassed bool) (QuizStatus, error) {
	out := QuizStatus{Status: QuizNotGenerated, RequiredScore: day.EffectiveThreshold()}
	subs, err := u.deps.Submissions.ListByDay(dbc, day.ID)
	if err != nil {
		return out, err
	}
	out.Attempts = len(subs)
	if quiz != nil {
		id := quiz.ID
		out.QuizID = &id
		out.RequiredScore = quiz.RequiredScore
		out.TotalQuestions = len(quiz.Questions)
	}

	var bestPass *types.Submission
	failedCurrent := false
	for _, s := range subs {
		if out.BestScore == nil || s.Score > *out.BestScore {
			score := s.Score
			out.BestScore = &score
		}
		if s.Passed && (bestPass == nil || s.Score > bestPass.Score) {
			bestPass = s
		}
		if !s.Passed && quiz != nil && s.QuizID == quiz.ID {
			failedCurrent = true
		}
	}
	if n := len(subs); n > 0 {
		last := subs[n-1].Score
		out.LastScore = &last
	}

	switch {
	case dayPassed && bestPass != nil:
		out.Status = QuizCompleted
		score := bestPass.Score
		out.BestScore = &score
		if day.CompletedAt != nil {
			out.CompletedAt = day.CompletedAt
		} else {
			at := bestPass.CreatedAt
			out.CompletedAt = &at
		}
	case quiz == nil:
		out.Status = QuizNotGenerated
	case failedCurrent:
		out.Status = QuizFailed
	default:
		out.Status = QuizReady
	}
	return out, nil
}
