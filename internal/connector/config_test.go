package connector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePipelineConfig(t *testing.T) {
	t.Run("empty config defaults", func(t *testing.T) {
		pc, err := ParsePipelineConfig(nil)

		require.NoError(t, err)
		assert.Equal(t, ModeFullDatabase, pc.ResolvedMode())
		assert.Equal(t, DefaultBatchSize, pc.ResolveBatchSize(0))
	})

	t.Run("full config round trip", func(t *testing.T) {
		raw := json.RawMessage(`{
			"mode": "single_table",
			"table": "orders",
			"write_disposition": "merge",
			"primary_key": "id",
			"batch_size": 500,
			"incremental": {"cursor_path": "updated_at", "row_order": "desc"},
			"filters": [{"column": "status", "op": "eq", "value": "paid"}]
		}`)
		pc, err := ParsePipelineConfig(raw)

		require.NoError(t, err)
		assert.Equal(t, ModeSingleTable, pc.ResolvedMode())
		assert.Equal(t, 500, pc.ResolveBatchSize(0))
		assert.Equal(t, 200, pc.ResolveBatchSize(200))
		require.NotNil(t, pc.Incremental)
		assert.Equal(t, "updated_at", pc.Incremental.CursorPath)

		opts := pc.WriteOptions()
		assert.Equal(t, DispositionMerge, opts.WriteDisposition)
		assert.Equal(t, "id", opts.PrimaryKey)
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		_, err := ParsePipelineConfig(json.RawMessage(`{`))
		assert.True(t, IsConfigError(err))
	})
}

func TestPipelineConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  PipelineConfig
		wantErr string
	}{
		{
			name:    "unknown mode",
			config:  PipelineConfig{Mode: "delta"},
			wantErr: "invalid mode",
		},
		{
			name:    "single_table without table",
			config:  PipelineConfig{Mode: ModeSingleTable},
			wantErr: "requires 'table'",
		},
		{
			name:    "table_names in single_table mode",
			config:  PipelineConfig{Mode: ModeSingleTable, Table: "t", TableNames: []string{"a"}},
			wantErr: "only valid in full_database",
		},
		{
			name:    "unknown write disposition",
			config:  PipelineConfig{WriteDisposition: "upsert"},
			wantErr: "invalid write_disposition",
		},
		{
			name:    "merge without primary key",
			config:  PipelineConfig{WriteDisposition: DispositionMerge},
			wantErr: "requires 'primary_key'",
		},
		{
			name:    "incremental without cursor",
			config:  PipelineConfig{Incremental: &IncrementalConfig{}},
			wantErr: "cursor_path",
		},
		{
			name:    "bad row order",
			config:  PipelineConfig{Incremental: &IncrementalConfig{CursorPath: "id", RowOrder: "random"}},
			wantErr: "row_order",
		},
		{
			name:    "negative batch size",
			config:  PipelineConfig{BatchSize: -1},
			wantErr: "batch_size",
		},
		{
			name:    "bad contract policy",
			config:  PipelineConfig{SchemaContract: &SchemaContract{Columns: "explode"}},
			wantErr: "schema_contract",
		},
		{
			name:    "filter without column",
			config:  PipelineConfig{Filters: []Filter{{Op: "eq"}}},
			wantErr: "filter requires 'column'",
		},
		{
			name:    "filter with unknown op",
			config:  PipelineConfig{Filters: []Filter{{Column: "x", Op: "regex"}}},
			wantErr: "unknown filter op",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("valid merge config", func(t *testing.T) {
		cfg := PipelineConfig{
			WriteDisposition: DispositionMerge,
			PrimaryKey:       "id",
			SchemaContract:   &SchemaContract{Tables: "evolve", Columns: "discard_row"},
		}
		assert.NoError(t, cfg.Validate())
	})
}
