package readiness

import (
	"github.com/pkg/errors"

	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

// ErrNotReady reports why a scheduled run must not start. Scheduled runs
// that hit it are failed, not rescheduled; the next cron tick tries again.
type ErrNotReady struct {
	Reason string
}

func (e *ErrNotReady) Error() string {
	return "target not ready: " + e.Reason
}

// Checker gates scheduled runs before execution. runID is the run being
// gated; its own pending row must not count as an active run.
type Checker interface {
	CheckReady(orgID, runID int64, targetType models.TargetType, targetID int64) error
}

type checker struct {
	runs      repository.RunRepository
	pipelines repository.PipelineRepository
}

func NewChecker(runs repository.RunRepository, pipelines repository.PipelineRepository) Checker {
	return &checker{runs: runs, pipelines: pipelines}
}

func (c *checker) CheckReady(orgID, runID int64, targetType models.TargetType, targetID int64) error {
	if targetType == models.TargetPipeline {
		p, err := c.pipelines.GetByID(orgID, targetID)
		if err != nil {
			if err == repository.ErrNotFound {
				return &ErrNotReady{Reason: "pipeline not found"}
			}
			return errors.Wrap(err, "failed to load pipeline")
		}
		if p.Status == models.PipelinePaused {
			return &ErrNotReady{Reason: "pipeline is paused"}
		}
	}

	active, err := c.runs.HasActiveRun(orgID, targetType, targetID, runID)
	if err != nil {
		return errors.Wrap(err, "failed to check active runs")
	}
	if active {
		return &ErrNotReady{Reason: "a run is already in progress"}
	}
	return nil
}
