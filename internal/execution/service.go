package execution

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/events"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

// Service owns run status transitions. Transitions are monotonic: a
// terminal run never changes again, and a transition that finds the run
// in an unexpected state is a silent no-op. That makes every operation
// safe to retry, which the task queue relies on.
type Service struct {
	runs    repository.RunRepository
	emitter events.Emitter
	logger  zerolog.Logger
}

func NewService(runs repository.RunRepository, emitter events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		runs:    runs,
		emitter: emitter,
		logger:  logger.With().Str("component", "run_lifecycle").Logger(),
	}
}

// Create records a new pending run for the target.
func (s *Service) Create(orgID int64, targetType models.TargetType, targetID int64) (models.Run, error) {
	run, err := s.runs.Create(orgID, targetType, targetID)
	if err != nil {
		return run, errors.Wrap(err, "failed to create run")
	}
	s.logger.Info().
		Int64("run_id", run.ID).
		Str("target_type", string(targetType)).
		Int64("target_id", targetID).
		Msg("Run created")
	return run, nil
}

// Start moves a pending run to running.
func (s *Service) Start(orgID, runID int64) error {
	affected, err := s.runs.MarkRunning(orgID, runID)
	if err != nil {
		return errors.Wrap(err, "failed to start run")
	}
	if affected == 0 {
		s.logger.Warn().Int64("run_id", runID).Msg("Start skipped, run not pending")
		return nil
	}
	go s.emit(orgID, runID, func(run models.Run) { s.emitter.RunStarted(run) })
	return nil
}

// Complete moves a running run to success and records the row count.
func (s *Service) Complete(orgID, runID, rowsLoaded int64, logs string) error {
	affected, err := s.runs.MarkSuccess(orgID, runID, rowsLoaded, logs)
	if err != nil {
		return errors.Wrap(err, "failed to complete run")
	}
	if affected == 0 {
		s.logger.Warn().Int64("run_id", runID).Msg("Complete skipped, run not running")
		return nil
	}
	go s.emit(orgID, runID, func(run models.Run) { s.emitter.RunSucceeded(run, rowsLoaded) })
	return nil
}

// Fail moves a pending or running run to failed with the error message
// and captured logs.
func (s *Service) Fail(orgID, runID int64, errorMessage, logs string) error {
	affected, err := s.runs.MarkFailed(orgID, runID, errorMessage, logs)
	if err != nil {
		return errors.Wrap(err, "failed to fail run")
	}
	if affected == 0 {
		s.logger.Warn().Int64("run_id", runID).Msg("Fail skipped, run already terminal")
		return nil
	}
	go s.emit(orgID, runID, func(run models.Run) { s.emitter.RunFailed(run, errorMessage) })
	return nil
}

// Cancel moves a pending or running run to cancelled.
func (s *Service) Cancel(orgID, runID int64) error {
	affected, err := s.runs.MarkCancelled(orgID, runID)
	if err != nil {
		return errors.Wrap(err, "failed to cancel run")
	}
	if affected == 0 {
		s.logger.Warn().Int64("run_id", runID).Msg("Cancel skipped, run already terminal")
		return nil
	}
	go s.emit(orgID, runID, func(run models.Run) { s.emitter.RunCancelled(run) })
	return nil
}

func (s *Service) Get(orgID, runID int64) (models.Run, error) {
	return s.runs.GetByID(orgID, runID)
}

func (s *Service) List(orgID int64, filter repository.RunFilter) ([]models.Run, error) {
	return s.runs.List(orgID, filter)
}

func (s *Service) Stats(orgID int64) (models.RunStats, error) {
	return s.runs.Stats(orgID)
}

func (s *Service) emit(orgID, runID int64, fn func(models.Run)) {
	run, err := s.runs.GetByID(orgID, runID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("run_id", runID).Msg("Failed to load run for event")
		return
	}
	fn(run)
}
