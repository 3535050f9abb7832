package models

import "time"

// CatalogEntry records a table that a pipeline loaded into a destination.
// Entries are upserted best-effort after successful loads.
type CatalogEntry struct {
	ID           int64      `json:"id" db:"id"`
	OrgID        int64      `json:"org_id" db:"org_id"`
	ConnectionID int64      `json:"connection_id" db:"connection_id"`
	OriginType   TargetType `json:"origin_type" db:"origin_type"`
	OriginID     int64      `json:"origin_id" db:"origin_id"`
	DatasetName  string     `json:"dataset_name" db:"dataset_name"`
	TableName    string     `json:"table_name" db:"table_name"`
	RowsLoaded   int64      `json:"rows_loaded" db:"rows_loaded"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
