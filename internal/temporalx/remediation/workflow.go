package remediation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/progression-engine/internal/modules/progression"
)

// Workflow runs one remediation. The activity is retried a few times; a stale
// request completes without changes.
func Workflow(ctx workflow.Context, req progression.RemediationRequest) (progression.RemediationOutcome, error) {
	var out progression.RemediationOutcome
	if req.PlanID == uuid.Nil || req.DayID == uuid.Nil {
		return out, fmt.Errorf("remediation: invalid request")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{nonRetryableType},
		},
	})
	if err := workflow.ExecuteActivity(ctx, ActivityRemediate, req).Get(ctx, &out); err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("remediation finished", "day_id", req.DayID.String(), "applied", out.Applied)
	return out, nil
}
