package activities

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/catalog"
	"github.com/etlfabric/etlfabric-api/internal/connector"
	"github.com/etlfabric/etlfabric-api/internal/crypto"
	"github.com/etlfabric/etlfabric-api/internal/engine"
	"github.com/etlfabric/etlfabric-api/internal/execution"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/readiness"
	"github.com/etlfabric/etlfabric-api/internal/repository"
	"github.com/etlfabric/etlfabric-api/internal/temporal"
)

// Activities holds the worker-side dependencies for run execution.
type Activities struct {
	Runs        *execution.Service
	Pipelines   repository.PipelineRepository
	Connections repository.ConnectionRepository
	Crypto      *crypto.Service
	Executor    *engine.Executor
	Catalog     *catalog.Service
	Readiness   readiness.Checker
	Logger      zerolog.Logger
}

func NewActivities(
	runs *execution.Service,
	pipelines repository.PipelineRepository,
	connections repository.ConnectionRepository,
	cryptoSvc *crypto.Service,
	executor *engine.Executor,
	catalogSvc *catalog.Service,
	readinessChk readiness.Checker,
	logger zerolog.Logger,
) *Activities {
	return &Activities{
		Runs:        runs,
		Pipelines:   pipelines,
		Connections: connections,
		Crypto:      cryptoSvc,
		Executor:    executor,
		Catalog:     catalogSvc,
		Readiness:   readinessChk,
		Logger:      logger.With().Str("component", "run_worker").Logger(),
	}
}

// ExecuteRunActivity drives one run from pending to a terminal status.
// Execution errors terminate the run row and return nil, so Temporal
// never retries a run that already failed. Only infrastructure errors
// (repository failures) propagate to the retry policy.
func (a *Activities) ExecuteRunActivity(ctx context.Context, params temporal.RunParams) error {
	logger := a.Logger.With().
		Int64("run_id", params.RunID).
		Str("target_type", string(params.TargetType)).
		Int64("target_id", params.TargetID).
		Logger()

	if params.Scheduled {
		if err := a.Readiness.CheckReady(params.OrgID, params.RunID, params.TargetType, params.TargetID); err != nil {
			logger.Warn().Err(err).Msg("Scheduled run blocked by readiness gate")
			return a.Runs.Fail(params.OrgID, params.RunID, err.Error(), "")
		}
	}

	if err := a.Runs.Start(params.OrgID, params.RunID); err != nil {
		return errors.Wrap(err, "failed to start run")
	}

	result, execErr := a.execute(ctx, params, logger)
	if execErr != nil {
		// The full error chain, stack traces included, goes into the
		// run's log column.
		logger.Error().Err(execErr).Msg("Run failed")
		return a.Runs.Fail(params.OrgID, params.RunID, execErr.Error(), fmt.Sprintf("%+v", execErr))
	}

	if err := a.Runs.Complete(params.OrgID, params.RunID, result.RowsLoaded, ""); err != nil {
		return errors.Wrap(err, "failed to complete run")
	}
	logger.Info().Int64("rows_loaded", result.RowsLoaded).Msg("Run succeeded")
	return nil
}

func (a *Activities) execute(ctx context.Context, params temporal.RunParams, logger zerolog.Logger) (engine.ExecuteResult, error) {
	var result engine.ExecuteResult

	if params.TargetType != models.TargetPipeline {
		return result, errors.Errorf("target type %s has no executor", params.TargetType)
	}

	pipeline, err := a.Pipelines.GetByID(params.OrgID, params.TargetID)
	if err != nil {
		return result, errors.Wrap(err, "failed to load pipeline")
	}
	pc, err := connector.ParsePipelineConfig(pipeline.Config)
	if err != nil {
		return result, err
	}

	srcFamily, srcConfig, err := a.resolveConnection(params.OrgID, pipeline.SourceConnectionID, func(c models.Connection) bool { return c.Direction.CanSource() })
	if err != nil {
		return result, errors.Wrap(err, "failed to resolve source connection")
	}
	destFamily, destConfig, err := a.resolveConnection(params.OrgID, pipeline.DestinationConnectionID, func(c models.Connection) bool { return c.Direction.CanDestination() })
	if err != nil {
		return result, errors.Wrap(err, "failed to resolve destination connection")
	}

	dataset := datasetName(pipeline)
	result, err = a.Executor.Execute(ctx, engine.ExecuteParams{
		SourceFamily:      srcFamily,
		SourceConfig:      srcConfig,
		DestinationFamily: destFamily,
		DestinationConfig: destConfig,
		PipelineConfig:    pc,
		Dataset:           dataset,
	})
	if err != nil {
		return result, err
	}

	run, getErr := a.Runs.Get(params.OrgID, params.RunID)
	if getErr != nil {
		logger.Warn().Err(getErr).Msg("Failed to load run for catalog sync")
		return result, nil
	}
	a.Catalog.SyncRun(run, pipeline.DestinationConnectionID, dataset, result.RowCounts)
	return result, nil
}

func (a *Activities) resolveConnection(orgID, connID int64, allowed func(models.Connection) bool) (connector.Family, connector.Config, error) {
	conn, err := a.Connections.GetByID(orgID, connID)
	if err != nil {
		return "", nil, err
	}
	if !allowed(conn) {
		return "", nil, errors.Errorf("connection %s cannot be used in this direction", conn.Name)
	}
	config, err := a.Crypto.DecryptConfig(conn.ConfigEncrypted)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to decrypt connection config")
	}
	return conn.Family, config, nil
}

// datasetName derives the destination schema for a pipeline's tables.
func datasetName(p models.Pipeline) string {
	return fmt.Sprintf("pipeline_%d", p.ID)
}
