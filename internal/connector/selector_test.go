package connector

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSelector() *Selector {
	return NewSelector(zerolog.Nop())
}

func TestSelectorBuildSource(t *testing.T) {
	s := testSelector()

	t.Run("sqlite source", func(t *testing.T) {
		src, err := s.BuildSource(FamilySQLite, Config{"path": "/tmp/app.db"}, &PipelineConfig{}, 100)

		require.NoError(t, err)
		require.NotNil(t, src)
		assert.NoError(t, src.Close())
	})

	t.Run("incremental only applies in single_table mode", func(t *testing.T) {
		pc := &PipelineConfig{Incremental: &IncrementalConfig{CursorPath: "id"}}
		src, err := s.BuildSource(FamilyPostgres, Config{"host": "db", "database": "app"}, pc, 100)

		require.NoError(t, err)
		assert.Nil(t, src.(*sqlSource).incremental)

		pc.Mode = ModeSingleTable
		pc.Table = "orders"
		pc.Incremental.InitialValue = "2024-01-01"
		src, err = s.BuildSource(FamilyPostgres, Config{"host": "db", "database": "app"}, pc, 100)
		require.NoError(t, err)

		inc := src.(*sqlSource).incremental
		require.NotNil(t, inc)
		assert.Equal(t, "id", inc.CursorPath)
		assert.Equal(t, "2024-01-01", inc.InitialValue)
	})

	t.Run("file source needs bucket_url", func(t *testing.T) {
		_, err := s.BuildSource(FamilyCSV, Config{}, &PipelineConfig{}, 100)

		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("rest source needs resources", func(t *testing.T) {
		_, err := s.BuildSource(FamilyRESTAPI, Config{"base_url": "https://api.example.com"}, &PipelineConfig{}, 100)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "resources")
	})

	t.Run("bigquery cannot source", func(t *testing.T) {
		_, err := s.BuildSource(FamilyBigQuery, Config{}, &PipelineConfig{}, 100)

		var unsupported *UnsupportedConnectorError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, FamilyBigQuery, unsupported.Family)
		assert.Equal(t, "source", unsupported.Operation)
	})
}

func TestSelectorBuildDestination(t *testing.T) {
	s := testSelector()

	t.Run("postgres destination", func(t *testing.T) {
		dest, err := s.BuildDestination(FamilyPostgres, Config{"host": "db", "database": "dw", "user": "u"})

		require.NoError(t, err)
		require.NotNil(t, dest)
	})

	t.Run("bigquery destination needs project", func(t *testing.T) {
		_, err := s.BuildDestination(FamilyBigQuery, Config{"dataset": "dw"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "project_id")
	})

	t.Run("rest cannot be destination", func(t *testing.T) {
		_, err := s.BuildDestination(FamilyRESTAPI, Config{})

		var unsupported *UnsupportedConnectorError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "destination", unsupported.Operation)
	})

	t.Run("csv cannot be destination", func(t *testing.T) {
		_, err := s.BuildDestination(FamilyCSV, Config{})

		var unsupported *UnsupportedConnectorError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, FamilyCSV, unsupported.Family)
	})
}
