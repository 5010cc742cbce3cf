package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

func TestExecuteWriteObservesSuccess(t *testing.T) {
	hooks := &spyHooks{}
	err := executeWrite(context.Background(), BaseDeps{
		Runner: spyTxRunner{},
		Hooks:  hooks,
	}, "progression.test.success", func(_ dbctx.Context) error { return nil })
	if err != nil {
		t.Fatalf("executeWrite success: %v", err)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != "success" {
		t.Fatalf("operations: %+v", hooks.Operations)
	}
}

func TestExecuteWriteDoesNotRetryRuleViolations(t *testing.T) {
	hooks := &spyHooks{}
	calls := 0
	err := executeWrite(context.Background(), BaseDeps{
		Runner: spyTxRunner{},
		Hooks:  hooks,
	}, "progression.test.gated", func(_ dbctx.Context) error {
		calls++
		return PreconditionError("complete previous day first")
	})
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("expected precondition code, got=%v", err)
	}
	if domainagg.MessageOf(err) != "complete previous day first" {
		t.Fatalf("message: %q", domainagg.MessageOf(err))
	}
	if calls != 1 || len(hooks.Retries) != 0 {
		t.Fatalf("calls=%d retries=%v", calls, hooks.Retries)
	}
	if hooks.Operations[0].Status != string(domainagg.CodePreconditionFailed) {
		t.Fatalf("status: %s", hooks.Operations[0].Status)
	}
}

func TestExecuteWriteCountsConflicts(t *testing.T) {
	hooks := &spyHooks{}
	err := executeWrite(context.Background(), BaseDeps{
		Runner: spyTxRunner{},
		Hooks:  hooks,
	}, "progression.test.conflict", func(_ dbctx.Context) error {
		return ConflictError("plan was modified concurrently")
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got=%v", err)
	}
	if len(hooks.Conflicts) != 1 || hooks.Conflicts[0] != "progression.test.conflict" {
		t.Fatalf("conflicts: %+v", hooks.Conflicts)
	}
	if len(hooks.Retries) != 0 {
		t.Fatalf("conflicts must not retry: %+v", hooks.Retries)
	}
}

func TestExecuteWriteRetriesTransientFailures(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		hooks := &spyHooks{}
		calls := 0
		err := executeWrite(context.Background(), BaseDeps{
			Runner: spyTxRunner{},
			Hooks:  hooks,
		}, "progression.test.busy", func(_ dbctx.Context) error {
			calls++
			if calls == 1 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}
		if calls != 2 || len(hooks.Retries) != 1 {
			t.Fatalf("calls=%d retries=%v", calls, hooks.Retries)
		}
		if hooks.Operations[0].Status != "success" {
			t.Fatalf("status: %s", hooks.Operations[0].Status)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		hooks := &spyHooks{}
		calls := 0
		err := executeWrite(context.Background(), BaseDeps{
			Runner:        spyTxRunner{},
			Hooks:         hooks,
			WriteAttempts: 2,
		}, "progression.test.retry", func(_ dbctx.Context) error {
			calls++
			return RetryableError("lock timeout")
		})
		if !domainagg.IsCode(err, domainagg.CodeRetryable) {
			t.Fatalf("expected retryable code, got=%v", err)
		}
		if calls != 2 || len(hooks.Retries) != 1 {
			t.Fatalf("calls=%d retries=%v", calls, hooks.Retries)
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := executeWrite(ctx, BaseDeps{Runner: spyTxRunner{}}, "progression.test.cancel", func(_ dbctx.Context) error {
			calls++
			cancel()
			return RetryableError("lock timeout")
		})
		if err == nil || calls != 1 {
			t.Fatalf("calls=%d err=%v", calls, err)
		}
	})
}

func TestAggregateErrorStatus(t *testing.T) {
	cases := map[string]error{
		"success":                                 nil,
		string(domainagg.CodeInvariantViolation): InvariantError("x"),
		string(domainagg.CodeConflict):           ConflictError("x"),
		string(domainagg.CodeRetryable):          context.DeadlineExceeded,
		string(domainagg.CodeNotFound):           NotFoundError("x"),
	}
	for want, err := range cases {
		if got := aggregateErrorStatus(err); got != want {
			t.Fatalf("aggregateErrorStatus(%v): want=%s got=%s", err, want, got)
		}
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) { h.Conflicts = append(h.Conflicts, name) }
func (h *spyHooks) IncRetry(name string)    { h.Retries = append(h.Retries, name) }
