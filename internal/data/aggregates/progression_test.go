package aggregates

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/progression-engine/internal/data/repos"
	"github.com/yungbote/progression-engine/internal/data/repos/testutil"
	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

type progressionFixture struct {
	db   *gorm.DB
	agg  domainagg.ProgressionAggregate
	seed *testutil.SeededPlan
	ctx  context.Context
}

func newProgressionFixture(t *testing.T, months, days int) *progressionFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	agg := NewProgressionAggregate(ProgressionAggregateDeps{
		Base:        BaseDeps{DB: db, Log: log},
		Plans:       repos.NewPlanRepo(db, log),
		Months:      repos.NewMonthRepo(db, log),
		Days:        repos.NewDayRepo(db, log),
		Quizzes:     repos.NewQuizRepo(db, log),
		Submissions: repos.NewSubmissionRepo(db, log),
		Events:      repos.NewEventRepo(db, log),
	})
	seed := testutil.SeedPlan(t, ctx, db, uuid.New(), months, days)
	return &progressionFixture{db: db, agg: agg, seed: seed, ctx: ctx}
}

func (f *progressionFixture) ref(month, day int) domainagg.DayRef {
	return domainagg.DayRef{LearnerID: f.seed.Plan.LearnerID, PlanID: f.seed.Plan.ID, Month: month, Day: day}
}

func tenQuestionQuiz() *domainagg.GeneratedQuiz {
	qs := make([]types.Question, 0, 10)
	for i := 0; i < 10; i++ {
		qs = append(qs, types.Question{
			Question:     fmt.Sprintf("q%d", i),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 0,
			Concept:      fmt.Sprintf("c%d", i%3),
		})
	}
	return &domainagg.GeneratedQuiz{Questions: qs, Source: types.QuizSourceGenerated}
}

// answers returns ten answers with the first `correct` of them right.
func answers(correct int) []int {
	out := make([]int, 10)
	for i := range out {
		if i >= correct {
			out[i] = 1
		}
	}
	return out
}

func (f *progressionFixture) start(t *testing.T, month, day int) domainagg.StartDayResult {
	t.Helper()
	res, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: f.ref(month, day), Quiz: tenQuestionQuiz()})
	if err != nil {
		t.Fatalf("StartDay(%d,%d): %v", month, day, err)
	}
	return res
}

func (f *progressionFixture) submit(t *testing.T, month, day, correct int) types.Submission {
	t.Helper()
	res, err := f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: f.ref(month, day), Answers: answers(correct)})
	if err != nil {
		t.Fatalf("SubmitQuiz(%d,%d): %v", month, day, err)
	}
	return res.Submission
}

func (f *progressionFixture) complete(t *testing.T, month, day int, sub uuid.UUID) domainagg.CompleteDayResult {
	t.Helper()
	res, err := f.agg.CompleteDay(f.ctx, domainagg.CompleteDayInput{DayRef: f.ref(month, day), SubmissionID: sub})
	if err != nil {
		t.Fatalf("CompleteDay(%d,%d): %v", month, day, err)
	}
	return res
}

func (f *progressionFixture) passDay(t *testing.T, month, day int) domainagg.CompleteDayResult {
	t.Helper()
	f.start(t, month, day)
	sub := f.submit(t, month, day, 10)
	return f.complete(t, month, day, sub.ID)
}

func (f *progressionFixture) month(t *testing.T, index int) *types.Month {
	t.Helper()
	m, err := repos.NewMonthRepo(f.db, testutil.Logger(t)).GetByPlanIndex(dbctx.Background(f.ctx), f.seed.Plan.ID, index)
	if err != nil || m == nil {
		t.Fatalf("load month %d: %v", index, err)
	}
	return m
}

func requireCode(t *testing.T, err error, code domainagg.ErrorCode, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !domainagg.IsCode(err, code) {
		t.Fatalf("code: want=%s got=%s (%v)", code, domainagg.CodeOf(err), err)
	}
	if msg != "" && domainagg.MessageOf(err) != msg {
		t.Fatalf("message: want=%q got=%q", msg, domainagg.MessageOf(err))
	}
}

func TestStartDayRequiresPreviousDayPassed(t *testing.T) {
	f := newProgressionFixture(t, 1, 3)

	_, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: f.ref(1, 2)})
	requireCode(t, err, domainagg.CodePreconditionFailed, "complete previous day first")

	res := f.start(t, 1, 1)
	if !res.FirstStart || !res.QuizCreated {
		t.Fatalf("first start: %+v", res)
	}
	if res.Day.StartedAt == nil || !res.Day.HasContent() {
		t.Fatalf("day should be started with content")
	}
	if res.Plan.FocusMonth != 1 || res.Plan.FocusDay != 1 {
		t.Fatalf("focus: want=1/1 got=%d/%d", res.Plan.FocusMonth, res.Plan.FocusDay)
	}
	if res.Plan.Version != f.seed.Plan.Version+1 {
		t.Fatalf("version: want=%d got=%d", f.seed.Plan.Version+1, res.Plan.Version)
	}
	if len(res.Events) != 1 || res.Events[0].Type != types.EventDayStarted {
		t.Fatalf("events: %+v", res.Events)
	}

	again := f.start(t, 1, 1)
	if again.FirstStart || again.QuizCreated || again.Quiz.ID != res.Quiz.ID {
		t.Fatalf("restart should reuse quiz: %+v", again)
	}
}

func TestCompleteDayFailedAttemptsThenPass(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	f.start(t, 1, 1)

	sub := f.submit(t, 1, 1, 6)
	if sub.Score != 60 || sub.Passed || sub.AttemptNumber != 1 {
		t.Fatalf("submission: score=%d passed=%v attempt=%d", sub.Score, sub.Passed, sub.AttemptNumber)
	}
	res := f.complete(t, 1, 1, sub.ID)
	if res.Outcome != domainagg.OutcomeRetryRequired || res.AttemptCount != 1 || res.RemediationDue {
		t.Fatalf("first failure: outcome=%s attempts=%d due=%v", res.Outcome, res.AttemptCount, res.RemediationDue)
	}
	if res.Day.CompletedAt != nil {
		t.Fatalf("failed day must not be completed")
	}

	// Re-completing the same failed submission is not a new attempt.
	res = f.complete(t, 1, 1, sub.ID)
	if res.AttemptCount != 1 {
		t.Fatalf("repeat failed complete: attempts=%d", res.AttemptCount)
	}

	sub = f.submit(t, 1, 1, 5)
	res = f.complete(t, 1, 1, sub.ID)
	if res.AttemptCount != 2 || !res.RemediationDue {
		t.Fatalf("second failure: attempts=%d due=%v", res.AttemptCount, res.RemediationDue)
	}

	sub = f.submit(t, 1, 1, 7)
	if sub.AttemptNumber != 3 || !sub.Passed {
		t.Fatalf("passing submission: attempt=%d passed=%v", sub.AttemptNumber, sub.Passed)
	}
	res = f.complete(t, 1, 1, sub.ID)
	if res.Outcome != domainagg.OutcomeCompleted || res.Day.CompletedAt == nil {
		t.Fatalf("pass: outcome=%s", res.Outcome)
	}
	if res.Day.BestScore == nil || *res.Day.BestScore != 70 || res.Day.AttemptCount != 3 {
		t.Fatalf("day counters: best=%v attempts=%d", res.Day.BestScore, res.Day.AttemptCount)
	}
	if res.MonthCompleted {
		t.Fatalf("month should still be open with day 2 pending")
	}
}

func TestCompleteDayIsIdempotent(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	first := f.passDay(t, 1, 1)
	if first.Outcome != domainagg.OutcomeCompleted || len(first.Events) != 1 {
		t.Fatalf("first complete: outcome=%s events=%d", first.Outcome, len(first.Events))
	}

	second := f.complete(t, 1, 1, first.Submission.ID)
	if second.Outcome != domainagg.OutcomeAlreadyCompleted || len(second.Events) != 0 {
		t.Fatalf("second complete: outcome=%s events=%d", second.Outcome, len(second.Events))
	}
	if second.Plan.Version != first.Plan.Version {
		t.Fatalf("idempotent complete must not bump version: %d -> %d", first.Plan.Version, second.Plan.Version)
	}
}

func TestCompleteDayRejectsForeignSubmission(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	f.passDay(t, 1, 1)
	f.start(t, 1, 2)
	other := f.submit(t, 1, 2, 3)

	_, err := f.agg.CompleteDay(f.ctx, domainagg.CompleteDayInput{DayRef: f.ref(1, 1), SubmissionID: other.ID})
	requireCode(t, err, domainagg.CodeValidation, "submission does not belong to this day")
}

func TestStartDayAutoHealsPassedPreviousDay(t *testing.T) {
	f := newProgressionFixture(t, 1, 3)
	f.start(t, 1, 1)
	f.submit(t, 1, 1, 9)

	res := f.start(t, 1, 2)
	if len(res.Healed) != 1 || res.Healed[0] != (domainagg.DayKey{Month: 1, Day: 1}) {
		t.Fatalf("healed: %+v", res.Healed)
	}
	if len(res.Events) != 2 || res.Events[0].Type != types.EventDayCompleted || res.Events[1].Type != types.EventDayStarted {
		t.Fatalf("events: %+v", res.Events)
	}
	if res.Events[0].Score == nil || *res.Events[0].Score != 90 {
		t.Fatalf("healed score: %+v", res.Events[0].Score)
	}
}

func TestAutoHealUsesMostRecentPassingSubmission(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	f.start(t, 1, 1)
	f.submit(t, 1, 1, 10)
	f.submit(t, 1, 1, 8)

	res := f.start(t, 1, 2)
	if len(res.Events) == 0 || res.Events[0].Type != types.EventDayCompleted {
		t.Fatalf("events: %+v", res.Events)
	}
	if res.Events[0].Score == nil || *res.Events[0].Score != 80 {
		t.Fatalf("healed score: want=80 got=%v", res.Events[0].Score)
	}
}

func TestMonthCompletionActivatesNextMonth(t *testing.T) {
	f := newProgressionFixture(t, 2, 2)

	_, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: f.ref(2, 1)})
	requireCode(t, err, domainagg.CodePreconditionFailed, "month is locked")

	f.passDay(t, 1, 1)
	f.start(t, 1, 2)
	sub := f.submit(t, 1, 2, 10)
	res, err := f.agg.CompleteDay(f.ctx, domainagg.CompleteDayInput{
		DayRef:       f.ref(1, 2),
		SubmissionID: sub.ID,
		NextMonth:    2,
		NextMonthDays: []types.DayOutline{
			{Concept: "closures"},
			{Concept: "generics"},
			{Concept: "channels"},
		},
	})
	if err != nil {
		t.Fatalf("CompleteDay: %v", err)
	}
	if !res.MonthCompleted || res.ActivatedMonth != 2 || res.PlanCompleted {
		t.Fatalf("cascade: month=%v activated=%d plan=%v", res.MonthCompleted, res.ActivatedMonth, res.PlanCompleted)
	}
	want := []types.EventType{types.EventDayCompleted, types.EventMonthCompleted}
	if len(res.Events) != len(want) {
		t.Fatalf("events: %+v", res.Events)
	}
	for i, e := range res.Events {
		if e.Type != want[i] || e.Sequence != i {
			t.Fatalf("event %d: want=%s got=%s seq=%d", i, want[i], e.Type, e.Sequence)
		}
	}

	if m := f.month(t, 1); !m.IsCompleted() || m.CompletedAt == nil {
		t.Fatalf("month 1: status=%s", m.Status)
	}
	m2 := f.month(t, 2)
	if !m2.IsActive() || !m2.DaysGenerated || m2.DaysTotal != 3 {
		t.Fatalf("month 2: status=%s generated=%v total=%d", m2.Status, m2.DaysGenerated, m2.DaysTotal)
	}
	start := f.start(t, 2, 1)
	if start.Day.Concept != "closures" {
		t.Fatalf("month 2 day 1 concept: %q", start.Day.Concept)
	}
}

func TestLockedMonthUnlocksByHealingPreviousMonth(t *testing.T) {
	f := newProgressionFixture(t, 2, 2)
	f.passDay(t, 1, 1)
	f.start(t, 1, 2)
	f.submit(t, 1, 2, 8)

	_, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: f.ref(2, 2)})
	requireCode(t, err, domainagg.CodePreconditionFailed, "month is locked")

	res := f.start(t, 2, 1)
	if len(res.Healed) != 1 || res.Healed[0] != (domainagg.DayKey{Month: 1, Day: 2}) {
		t.Fatalf("healed: %+v", res.Healed)
	}
	if !f.month(t, 1).IsCompleted() || !f.month(t, 2).IsActive() {
		t.Fatalf("month statuses not cascaded")
	}
	if res.Day.MonthIndex != 2 || res.Day.StartedAt == nil {
		t.Fatalf("month 2 day 1 not started")
	}
}

func TestFinalDayCompletesPlan(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)
	res := f.passDay(t, 1, 1)
	if !res.MonthCompleted || !res.PlanCompleted || res.ActivatedMonth != 0 {
		t.Fatalf("cascade: %+v", res)
	}
	if res.Plan.Status != types.PlanCompleted || res.Plan.CompletedAt == nil {
		t.Fatalf("plan status: %s", res.Plan.Status)
	}
	last := res.Events[len(res.Events)-1]
	if last.Type != types.EventPlanCompleted {
		t.Fatalf("last event: %s", last.Type)
	}
}

func TestSubmitQuizValidation(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)

	_, err := f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: f.ref(1, 1), Answers: answers(10)})
	requireCode(t, err, domainagg.CodePreconditionFailed, "start the day first")

	f.start(t, 1, 1)
	_, err = f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: f.ref(1, 1), Answers: []int{0, 0, 0}})
	requireCode(t, err, domainagg.CodeValidation, "")

	bad := answers(10)
	bad[3] = 4
	_, err = f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: f.ref(1, 1), Answers: bad})
	requireCode(t, err, domainagg.CodeValidation, "")

	_, err = f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: f.ref(1, 9), Answers: answers(10)})
	requireCode(t, err, domainagg.CodeNotFound, "day not found")

	_, err = f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{
		DayRef:  domainagg.DayRef{LearnerID: uuid.New(), PlanID: f.seed.Plan.ID, Month: 1, Day: 1},
		Answers: answers(10),
	})
	requireCode(t, err, domainagg.CodeNotFound, "plan not found")
}

func TestRegenerateQuizSupersedesPrevious(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)
	started := f.start(t, 1, 1)

	res, err := f.agg.RegenerateQuiz(f.ctx, domainagg.RegenerateQuizInput{DayRef: f.ref(1, 1), Quiz: *tenQuestionQuiz()})
	if err != nil {
		t.Fatalf("RegenerateQuiz: %v", err)
	}
	if res.PreviousID == nil || *res.PreviousID != started.Quiz.ID || !res.Quiz.IsRetake {
		t.Fatalf("regenerate: prev=%v retake=%v", res.PreviousID, res.Quiz.IsRetake)
	}
	old, err := repos.NewQuizRepo(f.db, testutil.Logger(t)).GetByID(dbctx.Background(f.ctx), started.Quiz.ID)
	if err != nil || old == nil || old.SupersededAt == nil {
		t.Fatalf("old quiz not superseded: %+v %v", old, err)
	}
	sub := f.submit(t, 1, 1, 10)
	if sub.QuizID != res.Quiz.ID {
		t.Fatalf("submission graded against stale quiz")
	}
}

func TestExpectedVersionMismatchConflicts(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	res := f.start(t, 1, 1)

	stale := res.Plan.Version - 1
	ref := f.ref(1, 1)
	ref.ExpectedVersion = &stale
	_, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: ref})
	requireCode(t, err, domainagg.CodeConflict, "")

	current := res.Plan.Version
	ref.ExpectedVersion = &current
	if _, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: ref}); err != nil {
		t.Fatalf("matching version: %v", err)
	}
}

func TestApplyRemediationSkipsCompletedDay(t *testing.T) {
	f := newProgressionFixture(t, 1, 2)
	f.start(t, 1, 1)
	day := f.seed.Days[1][0]

	lesson := types.FallbackLesson(day.Concept, []string{"Concept: c1 - review"})
	res, err := f.agg.ApplyRemediation(f.ctx, domainagg.ApplyRemediationInput{PlanID: f.seed.Plan.ID, DayID: day.ID, Attempt: 2, Lesson: lesson})
	if err != nil {
		t.Fatalf("ApplyRemediation: %v", err)
	}
	if !res.Applied || res.Day.ContentRevision != 1 || res.Day.ContentRegeneratedAt == nil {
		t.Fatalf("remediation not applied: %+v", res)
	}

	sub := f.submit(t, 1, 1, 10)
	f.complete(t, 1, 1, sub.ID)
	res, err = f.agg.ApplyRemediation(f.ctx, domainagg.ApplyRemediationInput{PlanID: f.seed.Plan.ID, DayID: day.ID, Attempt: 2, Lesson: lesson})
	if err != nil {
		t.Fatalf("ApplyRemediation after completion: %v", err)
	}
	if res.Applied {
		t.Fatalf("remediation must not rewrite a completed day")
	}
}

func TestCreatePlanMaterializesFirstMonth(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)
	res, err := f.agg.CreatePlan(f.ctx, domainagg.CreatePlanInput{
		LearnerID: uuid.New(),
		Title:     "Backend engineer",
		Months: []domainagg.MonthInput{
			{Title: "Foundations", Topics: []string{"http", "sql"}},
			{Title: "Services"},
			{Title: "Operations", Days: []types.DayOutline{{Concept: "alerts"}, {Concept: "slos"}}},
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(res.Months) != 3 || res.Plan.TotalMonths != 3 {
		t.Fatalf("months: %d total=%d", len(res.Months), res.Plan.TotalMonths)
	}
	m1, m2, m3 := res.Months[0], res.Months[1], res.Months[2]
	if !m1.IsActive() || !m1.DaysGenerated || m1.DaysTotal != types.DefaultDaysPerMonth {
		t.Fatalf("month 1: %+v", m1)
	}
	if !m2.IsLocked() || m2.DaysGenerated {
		t.Fatalf("month 2: %+v", m2)
	}
	if !m3.IsLocked() || !m3.DaysGenerated || m3.DaysTotal != 2 {
		t.Fatalf("month 3: %+v", m3)
	}

	_, err = f.agg.CreatePlan(f.ctx, domainagg.CreatePlanInput{LearnerID: uuid.New(), Title: "empty"})
	requireCode(t, err, domainagg.CodeValidation, "a plan needs at least one month")
}

func TestCreatePlanNormalizesClientOutlines(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)
	learner := uuid.New()
	res, err := f.agg.CreatePlan(f.ctx, domainagg.CreatePlanInput{
		LearnerID: learner,
		Title:     "Thresholds",
		Months: []domainagg.MonthInput{{Title: "Only", Days: []types.DayOutline{
			{Concept: "x", Threshold: 150},
			{Concept: "y", Threshold: -5},
			{Concept: "z", Threshold: 85, TimeEstimateMinutes: 30},
		}}},
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	var days []types.Day
	if err := f.db.Where("plan_id = ?", res.Plan.ID).Order("day_index").Find(&days).Error; err != nil {
		t.Fatalf("load days: %v", err)
	}
	want := []int{types.DefaultThreshold, types.DefaultThreshold, 85}
	for i, d := range days {
		if d.Threshold != want[i] {
			t.Fatalf("day %d threshold: want=%d got=%d", d.Index, want[i], d.Threshold)
		}
		if d.TimeEstimateMinutes <= 0 {
			t.Fatalf("day %d time estimate not filled", d.Index)
		}
	}

	ref := domainagg.DayRef{LearnerID: learner, PlanID: res.Plan.ID, Month: 1, Day: 1}
	if _, err := f.agg.StartDay(f.ctx, domainagg.StartDayInput{DayRef: ref, Quiz: tenQuestionQuiz()}); err != nil {
		t.Fatalf("StartDay: %v", err)
	}
	sub, err := f.agg.SubmitQuiz(f.ctx, domainagg.SubmitQuizInput{DayRef: ref, Answers: answers(10)})
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if !sub.Submission.Passed || sub.Submission.Score != 100 {
		t.Fatalf("perfect score not passing: %+v", sub.Submission)
	}
}

func TestCreatePlanRejectsOversizedPlans(t *testing.T) {
	f := newProgressionFixture(t, 1, 1)
	learner := uuid.New()

	_, err := f.agg.CreatePlan(f.ctx, domainagg.CreatePlanInput{
		LearnerID: learner,
		Title:     "Huge month",
		Months:    []domainagg.MonthInput{{Title: "M", DaysTotal: 50_000_000}},
	})
	requireCode(t, err, domainagg.CodeValidation, "")

	_, err = f.agg.CreatePlan(f.ctx, domainagg.CreatePlanInput{
		LearnerID: learner,
		Title:     "Too many months",
		Months:    make([]domainagg.MonthInput, domainagg.DefaultMaxMonths+1),
	})
	requireCode(t, err, domainagg.CodeValidation, "")

	var n int64
	if err := f.db.Model(&types.Plan{}).Where("learner_id = ?", learner).Count(&n).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if n != 0 {
		t.Fatalf("rejected plans were persisted: %d", n)
	}
}
