package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveAggregateOperation("op", "ok", time.Millisecond)
	m.IncAggregateConflict("op")
	m.IncContentFallback("quiz", "timeout")
	m.IncRemediation("applied")
	m.SetOutboxBacklog(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status: want=503 got=%d", rec.Code)
	}
}

func TestMetricsRecordAndExpose(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveAggregateOperation("Learning.Progression.CompleteDay", "ok", 5*time.Millisecond)
	m.ObserveAggregateOperation("Learning.Progression.CompleteDay", "ok", 5*time.Millisecond)
	m.IncAggregateConflict("Learning.Progression.CompleteDay")
	m.IncContentFallback("quiz", "timeout")
	m.IncSubmission(true)
	m.IncSubmission(false)
	m.IncSubmission(false)
	m.SetPlans("in_progress", 4)

	if got := testutil.ToFloat64(m.aggregateOps.WithLabelValues("Learning.Progression.CompleteDay", "ok")); got != 2 {
		t.Fatalf("aggregate ops: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues("failed")); got != 2 {
		t.Fatalf("failed submissions: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.plans.WithLabelValues("in_progress")); got != 4 {
		t.Fatalf("plans gauge: want=4 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"pe_content_fallback_total", "pe_aggregate_conflicts_total", "pe_plans"} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %s", want)
		}
	}
}
