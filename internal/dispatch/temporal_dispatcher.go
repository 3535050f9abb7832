package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	tc "go.temporal.io/sdk/client"

	"github.com/etlfabric/etlfabric-api/internal/temporal"
	"github.com/etlfabric/etlfabric-api/internal/temporal/workflows"
)

// temporalDispatcher enqueues runs as Temporal workflows. The workflow id
// is derived from the target, so the server rejects a second start while
// one is in flight; that rejection surfaces as *ErrDuplicate.
type temporalDispatcher struct {
	client tc.Client
	logger zerolog.Logger
}

func NewTemporalDispatcher(client tc.Client, logger zerolog.Logger) Dispatcher {
	return &temporalDispatcher{
		client: client,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *temporalDispatcher) Dispatch(ctx context.Context, msg Message) error {
	workflowID := temporal.WorkflowID(msg.TargetType, msg.TargetID)
	opts := tc.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                temporal.TaskQueueName,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	params := temporal.RunParams{
		RunID:      msg.RunID,
		OrgID:      msg.OrgID,
		TargetType: msg.TargetType,
		TargetID:   msg.TargetID,
		Scheduled:  msg.Scheduled,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, workflows.RunWorkflow, params)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return &ErrDuplicate{Existing: workflowID}
		}
		return errors.Wrap(err, "failed to start run workflow")
	}

	d.logger.Info().
		Int64("run_id", msg.RunID).
		Str("workflow_id", workflowID).
		Bool("scheduled", msg.Scheduled).
		Msg("Run dispatched")
	return nil
}
