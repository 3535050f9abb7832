package repository

import (
	"database/sql"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

type CatalogRepository interface {
	// Upsert records the tables a run loaded. One entry per
	// (connection, origin, dataset, table); repeated loads update the
	// row count in place.
	Upsert(entry models.CatalogEntry) (models.CatalogEntry, error)
	ListByConnection(orgID, connectionID int64) ([]models.CatalogEntry, error)
}

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Upsert(entry models.CatalogEntry) (models.CatalogEntry, error) {
	query := `
		INSERT INTO tenant.catalog_entries (org_id, connection_id, origin_type, origin_id, dataset_name, table_name, rows_loaded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (connection_id, origin_type, origin_id, dataset_name, table_name)
		DO UPDATE SET rows_loaded = EXCLUDED.rows_loaded, updated_at = now()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(query,
		entry.OrgID,
		entry.ConnectionID,
		entry.OriginType,
		entry.OriginID,
		entry.DatasetName,
		entry.TableName,
		entry.RowsLoaded,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	return entry, err
}

func (r *catalogRepository) ListByConnection(orgID, connectionID int64) ([]models.CatalogEntry, error) {
	query := `
		SELECT id, org_id, connection_id, origin_type, origin_id, dataset_name, table_name, rows_loaded, created_at, updated_at
		FROM tenant.catalog_entries
		WHERE org_id = $1 AND connection_id = $2
		ORDER BY dataset_name, table_name
	`
	rows, err := r.db.Query(query, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.CatalogEntry{}
	for rows.Next() {
		var e models.CatalogEntry
		if err := rows.Scan(
			&e.ID,
			&e.OrgID,
			&e.ConnectionID,
			&e.OriginType,
			&e.OriginID,
			&e.DatasetName,
			&e.TableName,
			&e.RowsLoaded,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
