package models

import (
	"encoding/json"
	"time"
)

type PipelineStatus string

const (
	PipelineDraft  PipelineStatus = "draft"
	PipelineActive PipelineStatus = "active"
	PipelinePaused PipelineStatus = "paused"
	PipelineError  PipelineStatus = "error"
)

// Pipeline is a named extraction job joining a source connection to a
// destination connection, with a declarative config consumed by the
// connector selector and the extraction executor.
type Pipeline struct {
	ID                      int64           `json:"id" db:"id"`
	OrgID                   int64           `json:"org_id" db:"org_id"`
	Name                    string          `json:"name" db:"name"`
	Description             string          `json:"description" db:"description"`
	SourceConnectionID      int64           `json:"source_connection_id" db:"source_connection_id"`
	DestinationConnectionID int64           `json:"destination_connection_id" db:"destination_connection_id"`
	Config                  json.RawMessage `json:"config" db:"config"`
	Status                  PipelineStatus  `json:"status" db:"status"`
	CreatedAt               time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt               *time.Time      `json:"-" db:"deleted_at"`
}
