package content

import (
	"context"
	"errors"
	"time"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const DefaultTimeout = 20 * time.Second

// Resilient bounds every generator call with a timeout and substitutes the
// deterministic fallback on failure. Its methods never fail.
type Resilient struct {
	primary  Generator
	fallback Generator
	timeout  time.Duration
	log      *logger.Logger
}

// NewResilient wraps primary; a nil primary means fallback-only.
func NewResilient(log *logger.Logger, primary Generator, timeout time.Duration) *Resilient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resilient{
		primary:  primary,
		fallback: Fallback{},
		timeout:  timeout,
		log:      log.With("service", "ContentGenerator"),
	}
}

// QuizResult is a normalized quiz and where it came from.
type QuizResult struct {
	Questions    []types.Question
	Source       string
	ProblemFocus []string
}

func (r *Resilient) Quiz(ctx context.Context, req QuizRequest) QuizResult {
	if req.Count <= 0 {
		req.Count = 10
	}
	if len(req.ProblemAreas) > 0 && req.MinCoverage <= 0 {
		req.MinCoverage = DefaultMinCoverage
	}
	focus := make([]string, 0, len(req.ProblemAreas))
	for _, a := range req.ProblemAreas {
		focus = append(focus, a.Prompt())
	}

	if r.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		qs, err := r.primary.GenerateQuiz(cctx, req)
		cancel()
		if err == nil {
			qs = NormalizeQuestions(qs, req.Concept, req.Count)
			if len(req.ProblemAreas) > 0 {
				if cov := Coverage(qs, req.ProblemAreas); cov < req.MinCoverage {
					r.log.Info("generated quiz below problem-area coverage; synthesizing targeted questions",
						"concept", req.Concept, "coverage", cov, "min", req.MinCoverage)
					qs = EnsureCoverage(qs, req.ProblemAreas, req.MinCoverage)
				}
			}
			return QuizResult{Questions: qs, Source: types.QuizSourceGenerated, ProblemFocus: focus}
		}
		r.noteFallback(ctx, "quiz", err)
	}

	qs, _ := r.fallback.GenerateQuiz(ctx, req)
	qs = NormalizeQuestions(qs, req.Concept, 0)
	return QuizResult{Questions: EnsureCoverage(qs, req.ProblemAreas, req.MinCoverage), Source: types.QuizSourceFallback, ProblemFocus: focus}
}

func (r *Resilient) Lesson(ctx context.Context, req LessonRequest) types.LessonContent {
	if r.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := r.primary.GenerateLessonContent(cctx, req)
		cancel()
		if err == nil {
			if len(req.Focus) > 0 && len(out.RemediationFocus) == 0 {
				out.RemediationFocus = append([]string(nil), req.Focus...)
			}
			return out
		}
		r.noteFallback(ctx, "lesson", err)
	}
	out, _ := r.fallback.GenerateLessonContent(ctx, req)
	return out
}

func (r *Resilient) MonthDays(ctx context.Context, req MonthDaysRequest) []types.DayOutline {
	if req.Count <= 0 {
		req.Count = types.DefaultDaysPerMonth
	}
	if r.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		days, err := r.primary.GenerateMonthDays(cctx, req)
		cancel()
		if err == nil {
			days = NormalizeDayOutlines(days, req.Count)
			if len(days) == req.Count {
				return days
			}
			err = errors.New("generator returned too few days")
		}
		r.noteFallback(ctx, "month_days", err)
	}
	days, _ := r.fallback.GenerateMonthDays(ctx, req)
	return days
}

func (r *Resilient) noteFallback(ctx context.Context, kind string, err error) {
	reason := "error"
	switch {
	case ctx.Err() != nil:
		reason = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		reason = "unavailable"
	}
	r.log.Warn("content generation failed; using fallback", "kind", kind, "reason", reason, "error", err)
	if m := observability.Current(); m != nil {
		m.IncContentFallback(kind, reason)
	}
}
