package aggregates

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/data/repos/testutil"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

func TestBumpPlanVersionRejectsStaleVersion(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	seed := testutil.SeedPlan(t, ctx, db, uuid.New(), 1, 1)
	guard := NewCASGuard(db)
	dbc := dbctx.Background(ctx)

	stale := *seed.Plan
	if err := guard.BumpPlanVersion(dbc, seed.Plan, map[string]any{"title": "renamed"}); err != nil {
		t.Fatalf("first bump: %v", err)
	}
	err := guard.BumpPlanVersion(dbc, &stale, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale bump: want conflict, got %v", err)
	}

	var got types.Plan
	if err := db.First(&got, "id = ?", seed.Plan.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Version != seed.Plan.Version+1 || got.Title != "renamed" {
		t.Fatalf("plan after bump: version=%d title=%q", got.Version, got.Title)
	}
}

func TestTransitionMonth(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	seed := testutil.SeedPlan(t, ctx, db, uuid.New(), 2, 1)
	guard := NewCASGuard(db)
	dbc := dbctx.Background(ctx)

	locked := *seed.Months[1]
	err := guard.TransitionMonth(dbc, &locked, types.MonthCompleted, nil)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("locked -> completed: want invariant violation, got %v", err)
	}

	if err := guard.TransitionMonth(dbc, &locked, types.MonthActive, nil); err != nil {
		t.Fatalf("locked -> active: %v", err)
	}
	if locked.Status != types.MonthActive {
		t.Fatalf("status not updated in memory: %s", locked.Status)
	}

	// A second writer still holding the locked snapshot loses.
	again := *seed.Months[1]
	err = guard.TransitionMonth(dbc, &again, types.MonthActive, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale transition: want conflict, got %v", err)
	}
}

func TestRequireExpectedVersion(t *testing.T) {
	if err := RequireExpectedVersion(4, nil); err != nil {
		t.Fatalf("unpinned version: unexpected err: %v", err)
	}
	v := 4
	if err := RequireExpectedVersion(4, &v); err != nil {
		t.Fatalf("matching version: unexpected err: %v", err)
	}
	v = 3
	if err := RequireExpectedVersion(4, &v); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale version: expected ErrConflict, got %v", err)
	}
	v = -1
	if err := RequireExpectedVersion(4, &v); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative version: expected validation, got %v", err)
	}
}
