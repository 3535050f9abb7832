package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/etlfabric/etlfabric-api/internal/temporal"
	"github.com/etlfabric/etlfabric-api/internal/temporal/activities"
)

// RunWorkflow executes one run. The workflow is deliberately thin: the
// single activity owns every status transition so failure details,
// stacks included, land on the run row rather than in workflow history.
func RunWorkflow(ctx workflow.Context, params temporal.RunParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting run workflow", "RunID", params.RunID, "TargetID", params.TargetID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	err := workflow.ExecuteActivity(ctx, a.ExecuteRunActivity, params).Get(ctx, nil)
	if err != nil {
		logger.Error("Run workflow failed.", "RunID", params.RunID, "error", err)
		return err
	}

	logger.Info("Run workflow completed.", "RunID", params.RunID)
	return nil
}
