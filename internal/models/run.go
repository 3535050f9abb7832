package models

import "time"

type TargetType string

const (
	TargetPipeline       TargetType = "pipeline"
	TargetTransformation TargetType = "transformation"
	TargetUpload         TargetType = "upload"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is legal.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunCancelled
}

// Run is the durable audit trail for a single execution attempt. A run is
// created exactly once per attempt and owned by the code path that created
// it until it reaches a terminal status.
type Run struct {
	ID           int64      `json:"id" db:"id"`
	OrgID        int64      `json:"org_id" db:"org_id"`
	TargetType   TargetType `json:"target_type" db:"target_type"`
	TargetID     int64      `json:"target_id" db:"target_id"`
	Status       RunStatus  `json:"status" db:"status"`
	StartedAt    *time.Time `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	RowsLoaded   *int64     `json:"rows_loaded" db:"rows_loaded"`
	ErrorMessage *string    `json:"error_message" db:"error_message"`
	Logs         *string    `json:"logs" db:"logs"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// RunStats summarizes run outcomes for the dashboard surface.
type RunStats struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}
