package aggregates

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

// CASGuard performs the compare-and-set writes that keep concurrent
// transitions of one plan from interleaving.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) scoped(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// BumpPlanVersion applies updates and increments the version, but only while
// the stored version still equals plan.Version.
func (g CASGuard) BumpPlanVersion(dbc dbctx.Context, plan *types.Plan, updates map[string]any) error {
	if plan == nil {
		return ValidationError("plan is required")
	}
	db, err := g.scoped(dbc)
	if err != nil {
		return err
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["version"] = plan.Version + 1
	res := db.Model(&types.Plan{}).
		Where("id = ? AND version = ?", plan.ID, plan.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ConflictError("plan was modified concurrently")
	}
	return nil
}

// TransitionMonth moves a month to status `to` when the move is legal and the
// stored status still matches month.Status.
func (g CASGuard) TransitionMonth(dbc dbctx.Context, month *types.Month, to types.MonthStatus, updates map[string]any) error {
	if month == nil {
		return ValidationError("month is required")
	}
	if !types.CanTransitionMonth(month.Status, to) {
		return InvariantError(fmt.Sprintf("month %d cannot move from %s to %s", month.Index, month.Status, to))
	}
	db, err := g.scoped(dbc)
	if err != nil {
		return err
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := db.Model(&types.Month{}).
		Where("id = ? AND status = ?", month.ID, month.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ConflictError(fmt.Sprintf("month %d changed concurrently", month.Index))
	}
	month.Status = to
	return nil
}

// RequireExpectedVersion checks a client-supplied version; nil means the caller did not pin one.
func RequireExpectedVersion(current int, expected *int) error {
	if expected == nil {
		return nil
	}
	if *expected < 0 {
		return ValidationError("expected_version must be >= 0")
	}
	if current != *expected {
		return ConflictError("plan was modified concurrently; reload and retry")
	}
	return nil
}
