package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/http/response"
	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/platform/apierr"
	"github.com/yungbote/progression-engine/internal/platform/ctxutil"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

type ProgressionHandlerDeps struct {
	Log         *logger.Logger
	Progression progression.Usecases
}

type ProgressionHandler struct {
	log *logger.Logger
	uc  progression.Usecases
}

func NewProgressionHandler(deps ProgressionHandlerDeps) *ProgressionHandler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressionHandler{log: log.With("handler", "ProgressionHandler"), uc: deps.Progression}
}

type monthRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Goals       []string           `json:"goals"`
	Topics      []string           `json:"topics"`
	DaysTotal   int                `json:"days_total"`
	Days        []types.DayOutline `json:"days"`
}

type createPlanRequest struct {
	Title   string               `json:"title"`
	Learner types.LearnerProfile `json:"learner"`
	Months  []monthRequest       `json:"months"`
}

type versionedRequest struct {
	ExpectedVersion *int `json:"expected_version"`
}

type submitRequest struct {
	Answers          []int `json:"answers"`
	TimeTakenSeconds *int  `json:"time_taken_seconds"`
	AutoComplete     *bool `json:"auto_complete"`
	ExpectedVersion  *int  `json:"expected_version"`
}

type completeRequest struct {
	SubmissionID    uuid.UUID `json:"submission_id"`
	ExpectedVersion *int      `json:"expected_version"`
}

type completionView struct {
	Outcome        domainagg.CompleteOutcome `json:"outcome"`
	Passed         bool                      `json:"passed"`
	Score          int                       `json:"score"`
	MonthCompleted bool                      `json:"month_completed"`
	PlanCompleted  bool                      `json:"plan_completed"`
	ActivatedMonth int                       `json:"activated_month,omitempty"`
	AttemptCount   int                       `json:"attempt_count"`
	Remediation    bool                      `json:"remediation_scheduled"`
	PlanVersion    int                       `json:"plan_version"`
}

func newCompletionView(res domainagg.CompleteDayResult) *completionView {
	return &completionView{
		Outcome:        res.Outcome,
		Passed:         res.Submission.Passed,
		Score:          res.Submission.Score,
		MonthCompleted: res.MonthCompleted,
		PlanCompleted:  res.PlanCompleted,
		ActivatedMonth: res.ActivatedMonth,
		AttemptCount:   res.AttemptCount,
		Remediation:    res.RemediationDue,
		PlanVersion:    res.Plan.Version,
	}
}

// POST /api/plans
func (h *ProgressionHandler) CreatePlan(c *gin.Context) {
	learnerID, ok := requireLearner(c)
	if !ok {
		return
	}
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	months := make([]domainagg.MonthInput, 0, len(req.Months))
	for _, m := range req.Months {
		months = append(months, domainagg.MonthInput{
			Title:       m.Title,
			Description: m.Description,
			Goals:       m.Goals,
			Topics:      m.Topics,
			DaysTotal:   m.DaysTotal,
			Days:        m.Days,
		})
	}
	res, err := h.uc.CreatePlan(c.Request.Context(), progression.CreatePlanInput{
		LearnerID: learnerID,
		Title:     req.Title,
		Learner:   req.Learner,
		Months:    months,
	})
	if err != nil {
		h.fail(c, "CreatePlan", err)
		return
	}
	response.RespondCreated(c, gin.H{"plan": res.Plan, "months": res.Months})
}

// GET /api/plans
func (h *ProgressionHandler) ListPlans(c *gin.Context) {
	learnerID, ok := requireLearner(c)
	if !ok {
		return
	}
	plans, err := h.uc.ListPlans(c.Request.Context(), learnerID)
	if err != nil {
		h.fail(c, "ListPlans", err)
		return
	}
	response.RespondOK(c, gin.H{"plans": plans})
}

// GET /api/plans/:plan_id
func (h *ProgressionHandler) GetPlan(c *gin.Context) {
	learnerID, planID, ok := planParams(c)
	if !ok {
		return
	}
	snap, err := h.uc.GetPlan(c.Request.Context(), learnerID, planID)
	if err != nil {
		h.fail(c, "GetPlan", err)
		return
	}
	response.RespondOK(c, snap)
}

// GET /api/plans/:plan_id/progress
func (h *ProgressionHandler) GetProgress(c *gin.Context) {
	learnerID, planID, ok := planParams(c)
	if !ok {
		return
	}
	summary, err := h.uc.GetProgressSummary(c.Request.Context(), learnerID, planID)
	if err != nil {
		h.fail(c, "GetProgressSummary", err)
		return
	}
	response.RespondOK(c, summary)
}

// GET /api/plans/:plan_id/quizzes
func (h *ProgressionHandler) ListQuizzes(c *gin.Context) {
	learnerID, planID, ok := planParams(c)
	if !ok {
		return
	}
	list, err := h.uc.ListQuizzes(c.Request.Context(), learnerID, planID)
	if err != nil {
		h.fail(c, "ListQuizzes", err)
		return
	}
	response.RespondOK(c, list)
}

// GET /api/plans/:plan_id/months/:month/days
func (h *ProgressionHandler) ListMonthDays(c *gin.Context) {
	learnerID, planID, ok := planParams(c)
	if !ok {
		return
	}
	month, ok := intParam(c, "month")
	if !ok {
		return
	}
	view, err := h.uc.ListMonthDays(c.Request.Context(), learnerID, planID, month)
	if err != nil {
		h.fail(c, "ListMonthDays", err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/plans/:plan_id/months/:month/days/:day
func (h *ProgressionHandler) GetDay(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	view, err := h.uc.GetDay(c.Request.Context(), addr.LearnerID, addr.PlanID, addr.Month, addr.Day)
	if err != nil {
		h.fail(c, "GetDay", err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/plans/:plan_id/months/:month/days/:day/start
func (h *ProgressionHandler) StartDay(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	var req versionedRequest
	if !bindOptional(c, &req) {
		return
	}
	addr.ExpectedVersion = req.ExpectedVersion
	res, err := h.uc.StartDay(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "StartDay", err)
		return
	}
	var lesson *types.LessonContent
	if l, ok := res.Day.Lesson(); ok {
		lesson = &l
	}
	response.RespondOK(c, gin.H{
		"plan_id":      res.Plan.ID,
		"plan_version": res.Plan.Version,
		"day":          res.Day,
		"lesson":       lesson,
		"quiz":         progression.NewQuizView(&res.Quiz),
		"quiz_created": res.QuizCreated,
		"first_start":  res.FirstStart,
		"healed":       res.Healed,
	})
}

// GET /api/plans/:plan_id/months/:month/days/:day/quiz
func (h *ProgressionHandler) GetQuiz(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	quiz, err := h.uc.GetQuiz(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "GetQuiz", err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": quiz})
}

// GET /api/plans/:plan_id/months/:month/days/:day/quiz/status
func (h *ProgressionHandler) GetQuizStatus(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	status, err := h.uc.GetQuizStatus(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "GetQuizStatus", err)
		return
	}
	response.RespondOK(c, status)
}

// POST /api/plans/:plan_id/months/:month/days/:day/quiz/submit
func (h *ProgressionHandler) SubmitQuiz(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	addr.ExpectedVersion = req.ExpectedVersion
	in := progression.SubmitQuizInput{DayAddress: addr, Answers: req.Answers, TimeTakenSeconds: req.TimeTakenSeconds}

	if req.AutoComplete != nil && !*req.AutoComplete {
		sub, err := h.uc.SubmitQuiz(c.Request.Context(), in)
		if err != nil {
			h.fail(c, "SubmitQuiz", err)
			return
		}
		response.RespondOK(c, gin.H{"submission": sub})
		return
	}

	out, err := h.uc.SubmitAndComplete(c.Request.Context(), in)
	if err != nil && out.Submission.ID == uuid.Nil {
		h.fail(c, "SubmitQuiz", err)
		return
	}
	body := gin.H{"submission": out.Submission}
	if err != nil {
		// The attempt is recorded; the client can acknowledge it via /complete.
		h.log.Warn("auto-complete failed", "submission_id", out.Submission.ID, "error", err)
		ae := apierr.FromError(err)
		body["completion_error"] = response.APIError{Message: ae.Error(), Code: ae.Code}
	}
	if out.Completion != nil {
		body["completion"] = newCompletionView(*out.Completion)
	}
	response.RespondOK(c, body)
}

// POST /api/plans/:plan_id/months/:month/days/:day/quiz/regenerate
func (h *ProgressionHandler) RegenerateQuiz(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	var req versionedRequest
	if !bindOptional(c, &req) {
		return
	}
	addr.ExpectedVersion = req.ExpectedVersion
	res, areas, err := h.uc.RegenerateQuiz(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "RegenerateQuiz", err)
		return
	}
	if areas == nil {
		areas = []types.ProblemArea{}
	}
	response.RespondOK(c, gin.H{
		"quiz":             progression.NewQuizView(&res.Quiz),
		"previous_quiz_id": res.PreviousID,
		"problem_areas":    areas,
	})
}

// GET /api/plans/:plan_id/months/:month/days/:day/submissions
func (h *ProgressionHandler) ListSubmissions(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	subs, err := h.uc.ListSubmissions(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "ListSubmissions", err)
		return
	}
	if subs == nil {
		subs = []*types.Submission{}
	}
	response.RespondOK(c, gin.H{"submissions": subs})
}

// POST /api/plans/:plan_id/months/:month/days/:day/complete
func (h *ProgressionHandler) CompleteDay(c *gin.Context) {
	addr, ok := dayAddress(c)
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	addr.ExpectedVersion = req.ExpectedVersion
	res, err := h.uc.CompleteDay(c.Request.Context(), progression.CompleteDayInput{DayAddress: addr, SubmissionID: req.SubmissionID})
	if err != nil {
		h.fail(c, "CompleteDay", err)
		return
	}
	response.RespondOK(c, newCompletionView(res))
}

// GET /api/me/cursor
func (h *ProgressionHandler) GetCursor(c *gin.Context) {
	learnerID, ok := requireLearner(c)
	if !ok {
		return
	}
	cur, err := h.uc.GetCursor(c.Request.Context(), learnerID)
	if err != nil {
		h.fail(c, "GetCursor", err)
		return
	}
	response.RespondOK(c, cur)
}

func (h *ProgressionHandler) fail(c *gin.Context, op string, err error) {
	ae := apierr.FromError(err)
	if ae.Status >= http.StatusInternalServerError {
		fields := append([]interface{}{"error", err, "path", c.FullPath()}, ctxutil.LogFields(c.Request.Context())...)
		h.log.Error(op+" failed", fields...)
	}
	response.RespondError(c, ae.Status, ae.Code, ae)
}

func requireLearner(c *gin.Context) (uuid.UUID, bool) {
	id := ctxutil.LearnerID(c.Request.Context())
	if id == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return uuid.Nil, false
	}
	return id, true
}

func planParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	learnerID, ok := requireLearner(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	planID, err := uuid.Parse(c.Param("plan_id"))
	if err != nil || planID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_plan_id", errors.New("invalid plan id"))
		return uuid.Nil, uuid.Nil, false
	}
	return learnerID, planID, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 1 {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, errors.New(name+" must be a positive integer"))
		return 0, false
	}
	return n, true
}

func dayAddress(c *gin.Context) (progression.DayAddress, bool) {
	learnerID, planID, ok := planParams(c)
	if !ok {
		return progression.DayAddress{}, false
	}
	month, ok := intParam(c, "month")
	if !ok {
		return progression.DayAddress{}, false
	}
	day, ok := intParam(c, "day")
	if !ok {
		return progression.DayAddress{}, false
	}
	return progression.DayAddress{LearnerID: learnerID, PlanID: planID, Month: month, Day: day}, true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	return true
}
