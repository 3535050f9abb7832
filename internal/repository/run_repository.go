package repository

import (
	"database/sql"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

// RunFilter narrows List results. Zero values mean "no constraint".
type RunFilter struct {
	TargetType models.TargetType
	TargetID   int64
	Status     models.RunStatus
	Limit      int
	Offset     int
}

type RunRepository interface {
	Create(orgID int64, targetType models.TargetType, targetID int64) (models.Run, error)
	GetByID(orgID, runID int64) (models.Run, error)
	List(orgID int64, filter RunFilter) ([]models.Run, error)

	// Status transitions are guarded on the current status and report the
	// number of rows updated. Zero means the run was not in the expected
	// state and nothing changed.
	MarkRunning(orgID, runID int64) (int64, error)
	MarkSuccess(orgID, runID int64, rowsLoaded int64, logs string) (int64, error)
	MarkFailed(orgID, runID int64, errorMessage, logs string) (int64, error)
	MarkCancelled(orgID, runID int64) (int64, error)

	// HasActiveRun reports whether the target has a pending or running
	// run other than excludeRunID. Callers gating a run they already
	// created pass its id so the row does not count against itself.
	HasActiveRun(orgID int64, targetType models.TargetType, targetID, excludeRunID int64) (bool, error)
	Stats(orgID int64) (models.RunStats, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `
	id, org_id, target_type, target_id, status, started_at, finished_at,
	rows_loaded, error_message, logs, created_at, updated_at
`

func (r *runRepository) Create(orgID int64, targetType models.TargetType, targetID int64) (models.Run, error) {
	run := models.Run{
		OrgID:      orgID,
		TargetType: targetType,
		TargetID:   targetID,
		Status:     models.RunPending,
	}
	query := `
		INSERT INTO tenant.runs (org_id, target_type, target_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(query, orgID, targetType, targetID, run.Status).
		Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	return run, err
}

func (r *runRepository) GetByID(orgID, runID int64) (models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM tenant.runs
		WHERE id = $1 AND org_id = $2
	`
	var run models.Run
	err := r.db.QueryRow(query, runID, orgID).Scan(
		&run.ID,
		&run.OrgID,
		&run.TargetType,
		&run.TargetID,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.RowsLoaded,
		&run.ErrorMessage,
		&run.Logs,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return run, ErrNotFound
		}
		return run, err
	}
	return run, nil
}

func (r *runRepository) List(orgID int64, filter RunFilter) ([]models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM tenant.runs
		WHERE org_id = $1
		  AND ($2 = '' OR target_type = $2)
		  AND ($3 = 0 OR target_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(query,
		orgID,
		string(filter.TargetType),
		filter.TargetID,
		string(filter.Status),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.Run, 0, limit)
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(
			&run.ID,
			&run.OrgID,
			&run.TargetType,
			&run.TargetID,
			&run.Status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.RowsLoaded,
			&run.ErrorMessage,
			&run.Logs,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepository) MarkRunning(orgID, runID int64) (int64, error) {
	query := `
		UPDATE tenant.runs
		SET status = 'running', started_at = now(), updated_at = now()
		WHERE id = $1 AND org_id = $2 AND status = 'pending'
	`
	res, err := r.db.Exec(query, runID, orgID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *runRepository) MarkSuccess(orgID, runID int64, rowsLoaded int64, logs string) (int64, error) {
	query := `
		UPDATE tenant.runs
		SET status = 'success', finished_at = now(), rows_loaded = $1,
		    logs = NULLIF($2, ''), updated_at = now()
		WHERE id = $3 AND org_id = $4 AND status = 'running'
	`
	res, err := r.db.Exec(query, rowsLoaded, logs, runID, orgID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *runRepository) MarkFailed(orgID, runID int64, errorMessage, logs string) (int64, error) {
	query := `
		UPDATE tenant.runs
		SET status = 'failed', finished_at = now(), error_message = NULLIF($1, ''),
		    logs = NULLIF($2, ''), updated_at = now()
		WHERE id = $3 AND org_id = $4 AND status IN ('pending', 'running')
	`
	res, err := r.db.Exec(query, errorMessage, logs, runID, orgID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *runRepository) MarkCancelled(orgID, runID int64) (int64, error) {
	query := `
		UPDATE tenant.runs
		SET status = 'cancelled', finished_at = now(), updated_at = now()
		WHERE id = $1 AND org_id = $2 AND status IN ('pending', 'running')
	`
	res, err := r.db.Exec(query, runID, orgID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *runRepository) HasActiveRun(orgID int64, targetType models.TargetType, targetID, excludeRunID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tenant.runs
			WHERE org_id = $1 AND target_type = $2 AND target_id = $3
			  AND id <> $4
			  AND status IN ('pending', 'running')
		)
	`
	var active bool
	err := r.db.QueryRow(query, orgID, targetType, targetID, excludeRunID).Scan(&active)
	return active, err
}

func (r *runRepository) Stats(orgID int64) (models.RunStats, error) {
	query := `
		SELECT
			COALESCE(COUNT(*), 0)                               AS total,
			COALESCE(SUM((status = 'success')::int), 0)         AS succeeded,
			COALESCE(SUM((status = 'failed')::int), 0)          AS failed,
			COALESCE(SUM((status = 'running')::int), 0)         AS running,
			COALESCE(SUM((status = 'pending')::int), 0)         AS pending
		FROM tenant.runs
		WHERE org_id = $1
	`
	var stats models.RunStats
	err := r.db.QueryRow(query, orgID).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Running,
		&stats.Pending,
	)
	if err != nil {
		return models.RunStats{}, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total) * 100.0
	}
	return stats, nil
}
