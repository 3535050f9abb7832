package events

import (
	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

// Emitter publishes run lifecycle events. Delivery is best effort:
// callers fire and forget, and a failing emitter never affects the run
// itself.
type Emitter interface {
	RunStarted(run models.Run)
	RunSucceeded(run models.Run, rowsLoaded int64)
	RunFailed(run models.Run, errorMessage string)
	RunCancelled(run models.Run)
}

type logEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter writes events to the structured log. It stands in for an
// external event bus in single-node deployments.
func NewLogEmitter(logger zerolog.Logger) Emitter {
	return &logEmitter{logger: logger.With().Str("component", "events").Logger()}
}

func (e *logEmitter) RunStarted(run models.Run) {
	e.event(run).Msg("Run started")
}

func (e *logEmitter) RunSucceeded(run models.Run, rowsLoaded int64) {
	e.event(run).Int64("rows_loaded", rowsLoaded).Msg("Run succeeded")
}

func (e *logEmitter) RunFailed(run models.Run, errorMessage string) {
	e.event(run).Str("error", errorMessage).Msg("Run failed")
}

func (e *logEmitter) RunCancelled(run models.Run) {
	e.event(run).Msg("Run cancelled")
}

func (e *logEmitter) event(run models.Run) *zerolog.Event {
	return e.logger.Info().
		Int64("run_id", run.ID).
		Int64("org_id", run.OrgID).
		Str("target_type", string(run.TargetType)).
		Int64("target_id", run.TargetID)
}
