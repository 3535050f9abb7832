package models

import (
	"time"

	"github.com/etlfabric/etlfabric-api/internal/connector"
)

type ConnectionDirection string

const (
	DirectionSource      ConnectionDirection = "source"
	DirectionDestination ConnectionDirection = "destination"
	DirectionBoth        ConnectionDirection = "both"
)

// CanSource reports whether a connection with this direction may be used
// as a pipeline source.
func (d ConnectionDirection) CanSource() bool {
	return d == DirectionSource || d == DirectionBoth
}

// CanDestination reports whether a connection with this direction may be
// used as a pipeline destination.
func (d ConnectionDirection) CanDestination() bool {
	return d == DirectionDestination || d == DirectionBoth
}

type Connection struct {
	ID              int64               `json:"id" db:"id"`
	OrgID           int64               `json:"org_id" db:"org_id"`
	Name            string              `json:"name" db:"name"`
	Family          connector.Family    `json:"family" db:"family"`
	Direction       ConnectionDirection `json:"direction" db:"direction"`
	ConfigEncrypted []byte              `json:"-" db:"config_encrypted"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time          `json:"-" db:"deleted_at"`
}
