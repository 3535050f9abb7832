package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

type stubPipelines struct {
	pipeline models.Pipeline
	err      error
}

func (s *stubPipelines) Create(p models.Pipeline) (models.Pipeline, error) { return p, nil }
func (s *stubPipelines) GetByID(orgID, pipelineID int64) (models.Pipeline, error) {
	return s.pipeline, s.err
}
func (s *stubPipelines) List(orgID int64) ([]models.Pipeline, error)       { return nil, nil }
func (s *stubPipelines) Update(p models.Pipeline) (models.Pipeline, error) { return p, nil }
func (s *stubPipelines) SetStatus(orgID, pipelineID int64, status models.PipelineStatus) error {
	return nil
}
func (s *stubPipelines) Delete(orgID, pipelineID int64) error { return nil }

type stubRuns struct {
	repository.RunRepository

	active      bool
	activeErr   error
	gotExcluded int64
}

func (s *stubRuns) HasActiveRun(orgID int64, targetType models.TargetType, targetID, excludeRunID int64) (bool, error) {
	s.gotExcluded = excludeRunID
	return s.active, s.activeErr
}

func TestCheckReady(t *testing.T) {
	t.Run("active pipeline with no running run", func(t *testing.T) {
		c := NewChecker(&stubRuns{}, &stubPipelines{
			pipeline: models.Pipeline{ID: 1, Status: models.PipelineActive},
		})
		assert.NoError(t, c.CheckReady(1, 10, models.TargetPipeline, 1))
	})

	t.Run("paused pipeline", func(t *testing.T) {
		c := NewChecker(&stubRuns{}, &stubPipelines{
			pipeline: models.Pipeline{ID: 1, Status: models.PipelinePaused},
		})
		err := c.CheckReady(1, 10, models.TargetPipeline, 1)

		var notReady *ErrNotReady
		require.ErrorAs(t, err, &notReady)
		assert.Contains(t, notReady.Reason, "paused")
	})

	t.Run("missing pipeline", func(t *testing.T) {
		c := NewChecker(&stubRuns{}, &stubPipelines{err: repository.ErrNotFound})
		err := c.CheckReady(1, 10, models.TargetPipeline, 1)

		var notReady *ErrNotReady
		require.ErrorAs(t, err, &notReady)
		assert.Contains(t, notReady.Reason, "not found")
	})

	t.Run("run already in progress", func(t *testing.T) {
		c := NewChecker(&stubRuns{active: true}, &stubPipelines{
			pipeline: models.Pipeline{ID: 1, Status: models.PipelineActive},
		})
		err := c.CheckReady(1, 10, models.TargetPipeline, 1)

		var notReady *ErrNotReady
		require.ErrorAs(t, err, &notReady)
		assert.Contains(t, notReady.Reason, "in progress")
	})

	t.Run("non-pipeline targets skip the pipeline lookup", func(t *testing.T) {
		c := NewChecker(&stubRuns{}, &stubPipelines{err: repository.ErrNotFound})
		assert.NoError(t, c.CheckReady(1, 10, models.TargetUpload, 9))
	})

	t.Run("gated run's own row is excluded from the active check", func(t *testing.T) {
		runs := &stubRuns{}
		c := NewChecker(runs, &stubPipelines{
			pipeline: models.Pipeline{ID: 1, Status: models.PipelineActive},
		})

		require.NoError(t, c.CheckReady(1, 42, models.TargetPipeline, 1))
		assert.Equal(t, int64(42), runs.gotExcluded)
	})
}
