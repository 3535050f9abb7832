package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptCredentials(t *testing.T) {
	t.Run("postgres renames user and injects drivername", func(t *testing.T) {
		creds := AdaptCredentials(FamilyPostgres, Config{
			"user":     "alice",
			"password": "secret",
			"host":     "db.local",
		})

		assert.Equal(t, "postgresql", creds["drivername"])
		assert.Equal(t, "alice", creds["username"])
		assert.NotContains(t, creds, "user")
		assert.Equal(t, "secret", creds["password"])
	})

	t.Run("existing username wins over user", func(t *testing.T) {
		creds := AdaptCredentials(FamilyMySQL, Config{
			"user":     "legacy",
			"username": "current",
		})

		assert.Equal(t, "current", creds["username"])
		assert.NotContains(t, creds, "user")
	})

	t.Run("sqlite maps path to database", func(t *testing.T) {
		creds := AdaptCredentials(FamilySQLite, Config{"path": "/var/data/app.db"})

		assert.Equal(t, "sqlite", creds["drivername"])
		assert.Equal(t, "/var/data/app.db", creds["database"])
		assert.NotContains(t, creds, "path")
	})

	t.Run("snowflake renames user", func(t *testing.T) {
		creds := AdaptCredentials(FamilySnowflake, Config{"user": "svc"})

		assert.Equal(t, "snowflake", creds["drivername"])
		assert.Equal(t, "svc", creds["username"])
	})

	t.Run("bigquery passes through unchanged", func(t *testing.T) {
		in := Config{"project_id": "proj", "user": "svc"}
		creds := AdaptCredentials(FamilyBigQuery, in)

		assert.Equal(t, "proj", creds["project_id"])
		assert.Equal(t, "svc", creds["user"])
		assert.NotContains(t, creds, "drivername")
	})

	t.Run("input map is not mutated", func(t *testing.T) {
		in := Config{"user": "alice"}
		AdaptCredentials(FamilyPostgres, in)

		require.Contains(t, in, "user")
		assert.NotContains(t, in, "username")
	})
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "postgres", DriverName(FamilyPostgres))
	assert.Equal(t, "postgres", DriverName(FamilyRedshift))
	assert.Equal(t, "mysql", DriverName(FamilyMySQL))
	assert.Equal(t, "sqlite", DriverName(FamilySQLite))
	assert.Equal(t, "snowflake", DriverName(FamilySnowflake))
}
