package aggregates

import (
	"time"

	"github.com/yungbote/progression-engine/internal/observability"
)

// Hooks receives one ObserveOperation per progression write plus a signal for
// every conflict and every retried attempt.
type Hooks interface {
	ObserveOperation(op, status string, dur time.Duration)
	IncConflict(op string)
	IncRetry(op string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type metricsHooks struct {
	m *observability.Metrics
}

// NewObservabilityHooks reports writes to the aggregate histograms and counters.
func NewObservabilityHooks(m *observability.Metrics) Hooks {
	if m == nil {
		return noopHooks{}
	}
	return metricsHooks{m: m}
}

func (h metricsHooks) ObserveOperation(op, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(op, status, dur)
}

func (h metricsHooks) IncConflict(op string) { h.m.IncAggregateConflict(op) }
func (h metricsHooks) IncRetry(op string)    { h.m.IncAggregateRetry(op) }
