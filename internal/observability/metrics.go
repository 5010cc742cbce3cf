package observability

import (
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const namespace = "pe"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateOps      *prometheus.CounterVec
	aggregateLatency  *prometheus.HistogramVec
	aggregateConflict *prometheus.CounterVec
	aggregateRetry    *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmCost     *prometheus.CounterVec

	contentFallback *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	remediation     *prometheus.CounterVec
	eventPublish    *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec

	plans         *prometheus.GaugeVec
	outboxBacklog prometheus.Gauge
	dbStats       *prometheus.GaugeVec
	redisUp       prometheus.Gauge
	redisPing     prometheus.Gauge

	llmCostInputPer1K  float64
	llmCostOutputPer1K float64
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process-wide metrics, or nil when metrics are disabled.
// Every method is safe on a nil receiver.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when disabled.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New(prometheus.NewRegistry())
		instance.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

// New registers a fresh metric set on reg. Tests use their own registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		aggregateOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_operations_total",
			Help: "Aggregate write operations by operation/status.",
		}, []string{"operation", "status"}),
		aggregateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency in seconds by operation/status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"operation", "status"}),
		aggregateConflict: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_conflicts_total",
			Help: "Aggregate writes rejected by optimistic concurrency.",
		}, []string{"operation"}),
		aggregateRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_retries_total",
			Help: "Aggregate writes that failed with a retryable database error.",
		}, []string{"operation"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "LLM requests by model/status.",
		}, []string{"model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds",
			Help:    "LLM request latency in seconds by model/status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"model", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "LLM tokens by model/direction.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_cost_usd_total",
			Help: "Estimated LLM cost (USD) by model/direction.",
		}, []string{"model", "direction"}),
		contentFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "content_fallback_total",
			Help: "Content generator calls served by the deterministic fallback, by kind/reason.",
		}, []string{"kind", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "progression_transitions_total",
			Help: "Progression events emitted by type.",
		}, []string{"type"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "quiz_submissions_total",
			Help: "Graded quiz submissions by result.",
		}, []string{"result"}),
		remediation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "remediation_total",
			Help: "Remediation jobs by outcome.",
		}, []string{"outcome"}),
		eventPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_publish_total",
			Help: "Outbox event publications by outcome.",
		}, []string{"outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs by job/status.",
		}, []string{"job", "status"}),
		plans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "plans",
			Help: "Plans by status.",
		}, []string{"status"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_backlog",
			Help: "Progression events not yet published.",
		}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_stats",
			Help: "Database connection pool stats.",
		}, []string{"metric"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Redis ping latency in seconds.",
		}),
		llmCostInputPer1K:  parseFloatEnv("LLM_COST_INPUT_PER_1K_USD", 0),
		llmCostOutputPer1K: parseFloatEnv("LLM_COST_OUTPUT_PER_1K_USD", 0),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflict, m.aggregateRetry,
		m.llmRequests, m.llmLatency, m.llmTokens, m.llmCost,
		m.contentFallback, m.transitions, m.submissions, m.remediation, m.eventPublish, m.jobRuns,
		m.plans, m.outboxBacklog, m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	operation = orDefault(operation, "unknown")
	status = orDefault(status, "unknown")
	m.aggregateOps.WithLabelValues(operation, status).Inc()
	if dur > 0 {
		m.aggregateLatency.WithLabelValues(operation, status).Observe(dur.Seconds())
	}
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflict.WithLabelValues(orDefault(operation, "unknown")).Inc()
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetry.WithLabelValues(orDefault(operation, "unknown")).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orDefault(model, "unknown")
	status = orDefault(status, "0")
	m.llmRequests.WithLabelValues(model, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
		if m.llmCostInputPer1K > 0 {
			m.llmCost.WithLabelValues(model, "input").Add(float64(inputTokens) / 1000.0 * m.llmCostInputPer1K)
		}
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
		if m.llmCostOutputPer1K > 0 {
			m.llmCost.WithLabelValues(model, "output").Add(float64(outputTokens) / 1000.0 * m.llmCostOutputPer1K)
		}
	}
}

func (m *Metrics) IncContentFallback(kind, reason string) {
	if m == nil {
		return
	}
	m.contentFallback.WithLabelValues(orDefault(kind, "unknown"), orDefault(reason, "unknown")).Inc()
}

func (m *Metrics) IncTransition(eventType string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(orDefault(eventType, "unknown")).Inc()
}

func (m *Metrics) IncSubmission(passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRemediation(outcome string) {
	if m == nil {
		return
	}
	m.remediation.WithLabelValues(orDefault(outcome, "unknown")).Inc()
}

func (m *Metrics) IncEventPublish(outcome string) {
	if m == nil {
		return
	}
	m.eventPublish.WithLabelValues(orDefault(outcome, "unknown")).Inc()
}

func (m *Metrics) IncJobRun(job, status string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(orDefault(job, "unknown"), orDefault(status, "unknown")).Inc()
}

func (m *Metrics) SetPlans(status string, n int64) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(orDefault(status, "unknown")).Set(float64(n))
}

func (m *Metrics) SetOutboxBacklog(n int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(n))
}

func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
	m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
	m.dbStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
}

func (m *Metrics) ObserveRedisPing(up bool, latency time.Duration) {
	if m == nil {
		return
	}
	if !up {
		m.redisUp.Set(0)
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(latency.Seconds())
}

func orDefault(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func parseFloatEnv(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
