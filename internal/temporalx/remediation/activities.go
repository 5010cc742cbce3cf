package remediation

import (
	"context"

	"go.temporal.io/sdk/temporal"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const nonRetryableType = "RemediationRejected"

type Activities struct {
	Log *logger.Logger
	Run progression.RemediateFunc
}

// Remediate runs the job body. Validation and not-found failures will not
// succeed on retry and are reported as non-retryable.
func (a *Activities) Remediate(ctx context.Context, req progression.RemediationRequest) (progression.RemediationOutcome, error) {
	out, err := a.Run(ctx, req)
	if err == nil {
		return out, nil
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation, domainagg.CodeNotFound:
		return out, temporal.NewNonRetryableApplicationError(err.Error(), nonRetryableType, err)
	}
	if a.Log != nil {
		a.Log.Warn("remediation activity failed", "plan_id", req.PlanID, "day_id", req.DayID, "error", err)
	}
	return out, err
}
