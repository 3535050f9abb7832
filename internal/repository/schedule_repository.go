package repository

import (
	"database/sql"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

type ScheduleRepository interface {
	Create(s models.Schedule) (models.Schedule, error)
	GetByID(orgID, scheduleID int64) (models.Schedule, error)
	List(orgID int64) ([]models.Schedule, error)
	ListActive() ([]models.Schedule, error)
	Update(s models.Schedule) (models.Schedule, error)
	SetActive(orgID, scheduleID int64, active bool) error
	Delete(orgID, scheduleID int64) error
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

const scheduleColumns = `
	id, org_id, target_type, target_id, cron_expression, timezone, is_active,
	created_at, updated_at
`

func (r *scheduleRepository) Create(s models.Schedule) (models.Schedule, error) {
	query := `
		INSERT INTO tenant.schedules (org_id, target_type, target_id, cron_expression, timezone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(query,
		s.OrgID,
		s.TargetType,
		s.TargetID,
		s.CronExpression,
		s.Timezone,
		s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *scheduleRepository) GetByID(orgID, scheduleID int64) (models.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM tenant.schedules
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	var s models.Schedule
	err := r.db.QueryRow(query, scheduleID, orgID).Scan(
		&s.ID,
		&s.OrgID,
		&s.TargetType,
		&s.TargetID,
		&s.CronExpression,
		&s.Timezone,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return s, ErrNotFound
		}
		return s, err
	}
	return s, nil
}

func (r *scheduleRepository) List(orgID int64) ([]models.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM tenant.schedules
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListActive returns every active schedule across all orgs. The scheduler
// uses it at startup to rebuild its in-memory job table.
func (r *scheduleRepository) ListActive() ([]models.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM tenant.schedules
		WHERE is_active AND deleted_at IS NULL
		ORDER BY id
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func scanSchedules(rows *sql.Rows) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(
			&s.ID,
			&s.OrgID,
			&s.TargetType,
			&s.TargetID,
			&s.CronExpression,
			&s.Timezone,
			&s.IsActive,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *scheduleRepository) Update(s models.Schedule) (models.Schedule, error) {
	query := `
		UPDATE tenant.schedules
		SET target_type = $1, target_id = $2, cron_expression = $3, timezone = $4,
		    is_active = $5, updated_at = now()
		WHERE id = $6 AND org_id = $7 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRow(query,
		s.TargetType,
		s.TargetID,
		s.CronExpression,
		s.Timezone,
		s.IsActive,
		s.ID,
		s.OrgID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return s, ErrNotFound
		}
		return s, err
	}
	return s, nil
}

func (r *scheduleRepository) SetActive(orgID, scheduleID int64, active bool) error {
	query := `
		UPDATE tenant.schedules
		SET is_active = $1, updated_at = now()
		WHERE id = $2 AND org_id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, active, scheduleID, orgID)
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

func (r *scheduleRepository) Delete(orgID, scheduleID int64) error {
	query := `
		UPDATE tenant.schedules
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, scheduleID, orgID)
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
