package remediation

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// Dispatcher starts one workflow per (day, attempt). When Temporal refuses the
// start the request goes to Fallback.
type Dispatcher struct {
	log       *logger.Logger
	client    temporalsdkclient.Client
	taskQueue string
	fallback  progression.Dispatcher
}

func NewDispatcher(log *logger.Logger, c temporalsdkclient.Client, taskQueue string, fallback progression.Dispatcher) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		log:       log.With("service", "TemporalRemediationDispatcher"),
		client:    c,
		taskQueue: taskQueue,
		fallback:  fallback,
	}
}

func WorkflowID(req progression.RemediationRequest) string {
	return fmt.Sprintf("remediation-%s-%d", req.DayID, req.Attempt)
}

func (d *Dispatcher) Dispatch(ctx context.Context, req progression.RemediationRequest) error {
	if d.client == nil {
		return d.dispatchFallback(ctx, req, errors.New("temporal client not configured"))
	}
	_, err := d.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(req),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, WorkflowName, req)
	if err == nil {
		observability.Current().IncRemediation("dispatched")
		return nil
	}
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	return d.dispatchFallback(ctx, req, err)
}

func (d *Dispatcher) dispatchFallback(ctx context.Context, req progression.RemediationRequest, cause error) error {
	if d.fallback == nil {
		return cause
	}
	d.log.Warn("temporal remediation start failed; using in-process pool", "day_id", req.DayID, "error", cause)
	return d.fallback.Dispatch(ctx, req)
}
