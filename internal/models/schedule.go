package models

import "time"

// Schedule binds a cron expression to a runnable target. The live timer
// registry is derived from active schedules and never persisted itself.
type Schedule struct {
	ID             int64      `json:"id" db:"id"`
	OrgID          int64      `json:"org_id" db:"org_id"`
	TargetType     TargetType `json:"target_type" db:"target_type"`
	TargetID       int64      `json:"target_id" db:"target_id"`
	CronExpression string     `json:"cron_expression" db:"cron_expression"`
	Timezone       string     `json:"timezone" db:"timezone"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`
}
