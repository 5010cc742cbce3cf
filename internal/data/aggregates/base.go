package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

var tracer = otel.Tracer("progression-engine/aggregates")

const (
	defaultWriteAttempts = 3
	retryBackoff         = 25 * time.Millisecond
)

type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard

	// WriteAttempts bounds how often a write is re-run after a retryable
	// failure (lock timeout, deadlock, busy SQLite file).
	WriteAttempts int
	// TxTimeout caps a single transaction. Zero means no cap.
	TxTimeout time.Duration
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB, d.TxTimeout)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.WriteAttempts <= 0 {
		d.WriteAttempts = defaultWriteAttempts
	}
	return d
}

// executeWrite runs fn in a transaction and maps the failure to an aggregate
// error code. Retryable failures re-run fn from scratch, so fn must rebuild
// its result on every call.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	var mapped error
	attempt := 1
	for ; ; attempt++ {
		mapped = MapError(op, deps.Runner.InTx(ctx, fn))
		if !domainagg.IsCode(mapped, domainagg.CodeRetryable) || attempt >= deps.WriteAttempts || ctx.Err() != nil {
			break
		}
		deps.Hooks.IncRetry(op)
		deps.Log.Debug("retrying aggregate write", "op", op, "attempt", attempt, "error", mapped)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}

	status := aggregateErrorStatus(mapped)
	switch domainagg.CodeOf(mapped) {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeInternal:
		span.RecordError(mapped)
		span.SetStatus(codes.Error, status)
		deps.Log.Error("aggregate write failed", "op", op, "error", mapped)
	}
	span.SetAttributes(
		attribute.String("aggregate.status", status),
		attribute.Int("aggregate.attempts", attempt),
	)
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
