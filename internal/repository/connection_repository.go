package repository

import (
	"database/sql"
	"errors"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

var ErrNotFound = errors.New("not found")

type ConnectionRepository interface {
	Create(conn models.Connection) (models.Connection, error)
	GetByID(orgID, connID int64) (models.Connection, error)
	List(orgID int64) ([]models.Connection, error)
	Update(conn models.Connection) (models.Connection, error)
	Delete(orgID, connID int64) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `
	id, org_id, name, family, direction, config_encrypted, created_at, updated_at
`

func (r *connectionRepository) Create(conn models.Connection) (models.Connection, error) {
	query := `
		INSERT INTO tenant.connections (org_id, name, family, direction, config_encrypted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(query,
		conn.OrgID,
		conn.Name,
		conn.Family,
		conn.Direction,
		conn.ConfigEncrypted,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)

	return conn, err
}

func (r *connectionRepository) GetByID(orgID, connID int64) (models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM tenant.connections
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	var conn models.Connection
	err := r.db.QueryRow(query, connID, orgID).Scan(
		&conn.ID,
		&conn.OrgID,
		&conn.Name,
		&conn.Family,
		&conn.Direction,
		&conn.ConfigEncrypted,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return conn, ErrNotFound
		}
		return conn, err
	}
	return conn, nil
}

func (r *connectionRepository) List(orgID int64) ([]models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM tenant.connections
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connections := []models.Connection{}
	for rows.Next() {
		var conn models.Connection
		if err := rows.Scan(
			&conn.ID,
			&conn.OrgID,
			&conn.Name,
			&conn.Family,
			&conn.Direction,
			&conn.ConfigEncrypted,
			&conn.CreatedAt,
			&conn.UpdatedAt,
		); err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *connectionRepository) Update(conn models.Connection) (models.Connection, error) {
	query := `
		UPDATE tenant.connections
		SET name = $1, family = $2, direction = $3, config_encrypted = $4, updated_at = now()
		WHERE id = $5 AND org_id = $6 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRow(query,
		conn.Name,
		conn.Family,
		conn.Direction,
		conn.ConfigEncrypted,
		conn.ID,
		conn.OrgID,
	).Scan(&conn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return conn, ErrNotFound
		}
		return conn, err
	}
	return conn, nil
}

func (r *connectionRepository) Delete(orgID, connID int64) error {
	query := `
		UPDATE tenant.connections
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, connID, orgID)
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
