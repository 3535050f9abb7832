package activities

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// fakeRunRepo mirrors the SQL repository's guarded transitions and the
// HasActiveRun exclusion semantics.
type fakeRunRepo struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]models.Run
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{nextID: 1, runs: make(map[int64]models.Run)}
}

func (r *fakeRunRepo) Create(orgID int64, targetType models.TargetType, targetID int64) (models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := models.Run{
		ID:         r.nextID,
		OrgID:      orgID,
		TargetType: targetType,
		TargetID:   targetID,
		Status:     models.RunPending,
	}
	r.nextID++
	r.runs[run.ID] = run
	return run, nil
}

func (r *fakeRunRepo) GetByID(orgID, runID int64) (models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok || run.OrgID != orgID {
		return models.Run{}, repository.ErrNotFound
	}
	return run, nil
}

func (r *fakeRunRepo) List(orgID int64, filter repository.RunFilter) ([]models.Run, error) {
	return nil, nil
}

func (r *fakeRunRepo) transition(orgID, runID int64, from []models.RunStatus, apply func(*models.Run)) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok || run.OrgID != orgID {
		return 0, nil
	}
	for _, s := range from {
		if run.Status == s {
			apply(&run)
			r.runs[runID] = run
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeRunRepo) MarkRunning(orgID, runID int64) (int64, error) {
	return r.transition(orgID, runID, []models.RunStatus{models.RunPending}, func(run *models.Run) {
		now := time.Now()
		run.Status = models.RunRunning
		run.StartedAt = &now
	})
}

func (r *fakeRunRepo) MarkSuccess(orgID, runID int64, rowsLoaded int64, logs string) (int64, error) {
	return r.transition(orgID, runID, []models.RunStatus{models.RunRunning}, func(run *models.Run) {
		now := time.Now()
		run.Status = models.RunSuccess
		run.FinishedAt = &now
		run.RowsLoaded = &rowsLoaded
		if logs != "" {
			run.Logs = &logs
		}
	})
}

func (r *fakeRunRepo) MarkFailed(orgID, runID int64, errorMessage, logs string) (int64, error) {
	return r.transition(orgID, runID, []models.RunStatus{models.RunPending, models.RunRunning}, func(run *models.Run) {
		now := time.Now()
		run.Status = models.RunFailed
		run.FinishedAt = &now
		if errorMessage != "" {
			run.ErrorMessage = &errorMessage
		}
		if logs != "" {
			run.Logs = &logs
		}
	})
}

func (r *fakeRunRepo) MarkCancelled(orgID, runID int64) (int64, error) {
	return r.transition(orgID, runID, []models.RunStatus{models.RunPending, models.RunRunning}, func(run *models.Run) {
		now := time.Now()
		run.Status = models.RunCancelled
		run.FinishedAt = &now
	})
}

func (r *fakeRunRepo) HasActiveRun(orgID int64, targetType models.TargetType, targetID, excludeRunID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == excludeRunID {
			continue
		}
		if run.OrgID == orgID && run.TargetType == targetType && run.TargetID == targetID && !run.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRunRepo) Stats(orgID int64) (models.RunStats, error) {
	return models.RunStats{}, nil
}

type fakePipelineRepo struct {
	pipelines map[int64]models.Pipeline
}

func (r *fakePipelineRepo) Create(p models.Pipeline) (models.Pipeline, error) { return p, nil }
func (r *fakePipelineRepo) GetByID(orgID, pipelineID int64) (models.Pipeline, error) {
	p, ok := r.pipelines[pipelineID]
	if !ok || p.OrgID != orgID {
		return models.Pipeline{}, repository.ErrNotFound
	}
	return p, nil
}
func (r *fakePipelineRepo) List(orgID int64) ([]models.Pipeline, error)       { return nil, nil }
func (r *fakePipelineRepo) Update(p models.Pipeline) (models.Pipeline, error) { return p, nil }
func (r *fakePipelineRepo) SetStatus(orgID, pipelineID int64, status models.PipelineStatus) error {
	return nil
}
func (r *fakePipelineRepo) Delete(orgID, pipelineID int64) error { return nil }

type fakeConnectionRepo struct {
	connections map[int64]models.Connection
}

func (r *fakeConnectionRepo) Create(c models.Connection) (models.Connection, error) { return c, nil }
func (r *fakeConnectionRepo) GetByID(orgID, connID int64) (models.Connection, error) {
	c, ok := r.connections[connID]
	if !ok || c.OrgID != orgID {
		return models.Connection{}, repository.ErrNotFound
	}
	return c, nil
}
func (r *fakeConnectionRepo) List(orgID int64) ([]models.Connection, error) { return nil, nil }
func (r *fakeConnectionRepo) Update(c models.Connection) (models.Connection, error) {
	return c, nil
}
func (r *fakeConnectionRepo) Delete(orgID, connID int64) error { return nil }

type fakeCatalogRepo struct {
	mu      sync.Mutex
	entries []models.CatalogEntry
}

func (r *fakeCatalogRepo) Upsert(entry models.CatalogEntry) (models.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *fakeCatalogRepo) ListByConnection(orgID, connectionID int64) ([]models.CatalogEntry, error) {
	return nil, nil
}

type noopEmitter struct{}

func (noopEmitter) RunStarted(models.Run)          {}
func (noopEmitter) RunSucceeded(models.Run, int64) {}
func (noopEmitter) RunFailed(models.Run, string)   {}
func (noopEmitter) RunCancelled(models.Run)        {}

type stubSource struct {
	batches []connector.Batch
	readErr error
}

func (s *stubSource) Read(ctx context.Context, sink connector.Sink) error {
	if s.readErr != nil {
		return s.readErr
	}
	for _, b := range s.batches {
		if err := sink(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubSource) Close() error { return nil }

type stubDestination struct{}

func (stubDestination) Open(ctx context.Context) error { return nil }
func (stubDestination) Write(ctx context.Context, batch connector.Batch, opts connector.WriteOptions) (int64, error) {
	return int64(len(batch.Rows)), nil
}
func (stubDestination) Close() error { return nil }

type stubBuilder struct {
	source connector.Source
}

func (b *stubBuilder) BuildSource(family connector.Family, config connector.Config, pc *connector.PipelineConfig, batchSize int) (connector.Source, error) {
	return b.source, nil
}

func (b *stubBuilder) BuildDestination(family connector.Family, config connector.Config) (connector.Destination, error) {
	return stubDestination{}, nil
}

type worldOptions struct {
	source connector.Source
}

type world struct {
	activities *Activities
	runs       *fakeRunRepo
	catalog    *fakeCatalogRepo
}

// newWorld wires an Activities value over in-memory repositories, a real
// crypto service and a stubbed connector builder, the same shape main
// assembles for the worker.
func newWorld(t *testing.T, opts worldOptions) *world {
	t.Helper()

	key := make([]byte, 32)
	cryptoSvc, err := crypto.NewService(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	srcConfig, err := cryptoSvc.EncryptConfig(connector.Config{"host": "src.local"})
	require.NoError(t, err)
	destConfig, err := cryptoSvc.EncryptConfig(connector.Config{"host": "dest.local"})
	require.NoError(t, err)

	runRepo := newFakeRunRepo()
	pipelineRepo := &fakePipelineRepo{pipelines: map[int64]models.Pipeline{
		7: {
			ID:                      7,
			OrgID:                   1,
			Name:                    "orders sync",
			SourceConnectionID:      101,
			DestinationConnectionID: 102,
			Config:                  json.RawMessage(`{"mode":"full_database"}`),
			Status:                  models.PipelineActive,
		},
	}}
	connRepo := &fakeConnectionRepo{connections: map[int64]models.Connection{
		101: {ID: 101, OrgID: 1, Name: "src", Family: connector.FamilyPostgres, Direction: models.DirectionBoth, ConfigEncrypted: srcConfig},
		102: {ID: 102, OrgID: 1, Name: "dest", Family: connector.FamilyPostgres, Direction: models.DirectionBoth, ConfigEncrypted: destConfig},
	}}
	catalogRepo := &fakeCatalogRepo{}

	if opts.source == nil {
		opts.source = &stubSource{}
	}
	executor := engine.NewExecutor(&stubBuilder{source: opts.source}, zerolog.Nop())

	acts := NewActivities(
		execution.NewService(runRepo, noopEmitter{}, zerolog.Nop()),
		pipelineRepo,
		connRepo,
		cryptoSvc,
		executor,
		catalog.NewService(catalogRepo, zerolog.Nop()),
		readiness.NewChecker(runRepo, pipelineRepo),
		zerolog.Nop(),
	)
	return &world{activities: acts, runs: runRepo, catalog: catalogRepo}
}

func params(runID int64, scheduled bool) temporal.RunParams {
	return temporal.RunParams{
		RunID:      runID,
		OrgID:      1,
		TargetType: models.TargetPipeline,
		TargetID:   7,
		Scheduled:  scheduled,
	}
}

func TestExecuteRunActivity(t *testing.T) {
	t.Run("successful run", func(t *testing.T) {
		w := newWorld(t, worldOptions{source: &stubSource{batches: []connector.Batch{
			{Table: "orders", Rows: []connector.Row{{"id": 1}, {"id": 2}}},
			{Table: "customers", Rows: []connector.Row{{"id": 9}}},
		}}})
		run, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)

		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), params(run.ID, false)))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunSuccess, got.Status)
		require.NotNil(t, got.RowsLoaded)
		assert.Equal(t, int64(3), *got.RowsLoaded)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.FinishedAt)

		// Catalog sync recorded both loaded tables under the pipeline's
		// dataset.
		w.catalog.mu.Lock()
		defer w.catalog.mu.Unlock()
		require.Len(t, w.catalog.entries, 2)
		assert.Equal(t, "pipeline_7", w.catalog.entries[0].DatasetName)
	})

	t.Run("extraction error fails the run with stack logs", func(t *testing.T) {
		w := newWorld(t, worldOptions{source: &stubSource{
			readErr: errors.New("dial tcp: connection refused"),
		}})
		run, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)

		// The activity returns nil: the failure belongs to the run row,
		// not to the task queue's retry policy.
		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), params(run.ID, false)))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "connection refused")
		require.NotNil(t, got.Logs)
		assert.Contains(t, *got.Logs, "connection refused")
		// %+v on a wrapped error carries file:line stack frames.
		assert.Contains(t, *got.Logs, ".go:")
		assert.True(t, strings.Contains(*got.Logs, "extraction failed"))
	})

	t.Run("scheduled run is not blocked by its own pending row", func(t *testing.T) {
		w := newWorld(t, worldOptions{source: &stubSource{batches: []connector.Batch{
			{Table: "orders", Rows: []connector.Row{{"id": 1}}},
		}}})
		run, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)

		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), params(run.ID, true)))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunSuccess, got.Status)
	})

	t.Run("scheduled run yields to another in-flight run", func(t *testing.T) {
		w := newWorld(t, worldOptions{})
		older, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)
		_, err = w.runs.MarkRunning(1, older.ID)
		require.NoError(t, err)

		run, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)

		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), params(run.ID, true)))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "already in progress")

		// The in-flight run is untouched.
		other, err := w.runs.GetByID(1, older.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunRunning, other.Status)
	})

	t.Run("scheduled run against a paused pipeline fails", func(t *testing.T) {
		w := newWorld(t, worldOptions{})
		w.activities.Pipelines.(*fakePipelineRepo).pipelines[7] = models.Pipeline{
			ID: 7, OrgID: 1, Status: models.PipelinePaused,
		}
		run, err := w.runs.Create(1, models.TargetPipeline, 7)
		require.NoError(t, err)

		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), params(run.ID, true)))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "paused")
	})

	t.Run("target without an executor fails the run", func(t *testing.T) {
		w := newWorld(t, worldOptions{})
		run, err := w.runs.Create(1, models.TargetUpload, 3)
		require.NoError(t, err)

		p := params(run.ID, false)
		p.TargetType = models.TargetUpload
		p.TargetID = 3
		require.NoError(t, w.activities.ExecuteRunActivity(context.Background(), p))

		got, err := w.runs.GetByID(1, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Contains(t, *got.ErrorMessage, "no executor")
	})
}
