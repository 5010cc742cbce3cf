package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

// SeededPlan is a plan whose first month is active and fully materialized.
type SeededPlan struct {
	Plan   *types.Plan
	Months []*types.Month
	Days   map[int][]*types.Day
}

// SeedPlan creates a plan with the given number of months and days per month.
// Only month 1 has days; later months are locked and unmaterialized.
func SeedPlan(tb testing.TB, ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, months, daysPerMonth int) *SeededPlan {
	tb.Helper()
	now := time.Now().UTC()
	p := &types.Plan{
		ID:          uuid.New(),
		LearnerID:   learnerID,
		Title:       "plan",
		Status:      types.PlanInProgress,
		TotalMonths: months,
		Learner:     datatypes.NewJSONType(types.LearnerProfile{Level: "beginner"}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed plan: %v", err)
	}
	out := &SeededPlan{Plan: p, Days: map[int][]*types.Day{}}
	for i := 1; i <= months; i++ {
		m := &types.Month{
			ID:        uuid.New(),
			PlanID:    p.ID,
			Index:     i,
			Title:     fmt.Sprintf("Month %d", i),
			Topics:    datatypes.JSONSlice[string]{fmt.Sprintf("topic-%d", i)},
			Goals:     datatypes.JSONSlice[string]{},
			Status:    types.MonthLocked,
			DaysTotal: daysPerMonth,
		}
		if i == 1 {
			m.Status = types.MonthActive
			m.StartedAt = &now
			m.DaysGenerated = true
		}
		if err := tx.WithContext(ctx).Create(m).Error; err != nil {
			tb.Fatalf("seed month: %v", err)
		}
		out.Months = append(out.Months, m)
		if i != 1 {
			continue
		}
		for d := 1; d <= daysPerMonth; d++ {
			day := &types.Day{
				ID:                  uuid.New(),
				PlanID:              p.ID,
				MonthID:             m.ID,
				MonthIndex:          i,
				Index:               d,
				Concept:             fmt.Sprintf("concept %d.%d", i, d),
				TimeEstimateMinutes: 60,
				Threshold:           types.DefaultThreshold,
			}
			if err := tx.WithContext(ctx).Create(day).Error; err != nil {
				tb.Fatalf("seed day: %v", err)
			}
			out.Days[i] = append(out.Days[i], day)
		}
	}
	return out
}
