package repository

import (
	"database/sql"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

type PipelineRepository interface {
	Create(p models.Pipeline) (models.Pipeline, error)
	GetByID(orgID, pipelineID int64) (models.Pipeline, error)
	List(orgID int64) ([]models.Pipeline, error)
	Update(p models.Pipeline) (models.Pipeline, error)
	SetStatus(orgID, pipelineID int64, status models.PipelineStatus) error
	Delete(orgID, pipelineID int64) error
}

type pipelineRepository struct {
	db *sql.DB
}

func NewPipelineRepository(db *sql.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

const pipelineColumns = `
	id, org_id, name, description, source_connection_id, destination_connection_id,
	config, status, created_at, updated_at
`

func (r *pipelineRepository) Create(p models.Pipeline) (models.Pipeline, error) {
	// The connection joins enforce that both endpoints exist, belong to
	// the same org and have not been soft deleted.
	query := `
		INSERT INTO tenant.pipelines (org_id, name, description, source_connection_id, destination_connection_id, config, status)
		SELECT $1, $2, $3, $4, $5, $6, $7
		FROM tenant.connections sc, tenant.connections dc
		WHERE sc.id = $4 AND sc.org_id = $1 AND sc.deleted_at IS NULL
		  AND dc.id = $5 AND dc.org_id = $1 AND dc.deleted_at IS NULL
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(query,
		p.OrgID,
		p.Name,
		p.Description,
		p.SourceConnectionID,
		p.DestinationConnectionID,
		p.Config,
		p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	return p, nil
}

func (r *pipelineRepository) GetByID(orgID, pipelineID int64) (models.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM tenant.pipelines
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	var p models.Pipeline
	err := r.db.QueryRow(query, pipelineID, orgID).Scan(
		&p.ID,
		&p.OrgID,
		&p.Name,
		&p.Description,
		&p.SourceConnectionID,
		&p.DestinationConnectionID,
		&p.Config,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	return p, nil
}

func (r *pipelineRepository) List(orgID int64) ([]models.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM tenant.pipelines
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pipelines := []models.Pipeline{}
	for rows.Next() {
		var p models.Pipeline
		if err := rows.Scan(
			&p.ID,
			&p.OrgID,
			&p.Name,
			&p.Description,
			&p.SourceConnectionID,
			&p.DestinationConnectionID,
			&p.Config,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

func (r *pipelineRepository) Update(p models.Pipeline) (models.Pipeline, error) {
	query := `
		UPDATE tenant.pipelines
		SET name = $1, description = $2, source_connection_id = $3,
		    destination_connection_id = $4, config = $5, status = $6, updated_at = now()
		WHERE id = $7 AND org_id = $8 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRow(query,
		p.Name,
		p.Description,
		p.SourceConnectionID,
		p.DestinationConnectionID,
		p.Config,
		p.Status,
		p.ID,
		p.OrgID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	return p, nil
}

func (r *pipelineRepository) SetStatus(orgID, pipelineID int64, status models.PipelineStatus) error {
	query := `
		UPDATE tenant.pipelines
		SET status = $1, updated_at = now()
		WHERE id = $2 AND org_id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, status, pipelineID, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pipelineRepository) Delete(orgID, pipelineID int64) error {
	query := `
		UPDATE tenant.pipelines
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, pipelineID, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
