package aggregates

import (
	"errors"
	"fmt"
	"testing"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PreconditionKeepsMessage(t *testing.T) {
	err := MapError("op", PreconditionError("complete previous day first"))
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("expected precondition code, got %q (%v)", domainagg.CodeOf(err), err)
	}
	if got := domainagg.MessageOf(err); got != "complete previous day first" {
		t.Fatalf("message: got %q", got)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
	err = MapError("op", NotFoundError("day not found"))
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_SQLiteUniqueIsConflict(t *testing.T) {
	err := MapError("op", errors.New("UNIQUE constraint failed: progression_submission.day_id, progression_submission.attempt_number"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_WrappedAggregateErrorKeepsCode(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeNotFound, "inner", "plan not found", nil)
	out := MapError("outer", fmt.Errorf("load: %w", in))
	if !domainagg.IsCode(out, domainagg.CodeNotFound) || domainagg.MessageOf(out) != "plan not found" {
		t.Fatalf("unexpected mapping: %v", out)
	}
}
