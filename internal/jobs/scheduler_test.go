package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/data/repos"
	"github.com/yungbote/progression-engine/internal/data/repos/testutil"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

func TestSchedulerRunsJobsRepeatedly(t *testing.T) {
	s := NewScheduler(logger.Nop())
	var runs atomic.Int32
	if err := s.Add(Job{Name: "tick", Every: 20 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, want >= 2", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRejectsBadJobs(t *testing.T) {
	s := NewScheduler(nil)
	noop := func(context.Context) error { return nil }
	if err := s.Add(Job{Name: "", Every: time.Second, Run: noop}); err == nil {
		t.Fatalf("missing name accepted")
	}
	if err := s.Add(Job{Name: "x", Every: 0, Run: noop}); err == nil {
		t.Fatalf("zero interval accepted")
	}
	if err := s.Add(Job{Name: "x", Every: time.Second, Run: noop}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(Job{Name: "x", Every: time.Second, Run: noop}); err == nil {
		t.Fatalf("duplicate name accepted")
	}
}

func TestRunJobSurvivesPanicAndError(t *testing.T) {
	s := NewScheduler(nil)
	s.runJob(Job{Name: "panics", Run: func(context.Context) error { panic("boom") }})
	s.runJob(Job{Name: "fails", Run: func(context.Context) error { return errors.New("nope") }})

	var sawDeadline bool
	s.runJob(Job{Name: "bounded", Timeout: time.Minute, Run: func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}})
	if !sawDeadline {
		t.Fatalf("job timeout not applied to context")
	}
}

func TestGaugeRefreshJob(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedPlan(t, ctx, db, uuid.New(), 1, 1)

	job := GaugeRefreshJob(db, repos.NewPlanRepo(db, testutil.Logger(t)), nil, time.Minute)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("gauge refresh: %v", err)
	}
}
