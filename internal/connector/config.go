package connector

import (
	"encoding/json"
)

// DefaultBatchSize is used when neither the caller nor the pipeline config
// specifies one.
const DefaultBatchSize = 10000

const (
	ModeSingleTable  = "single_table"
	ModeFullDatabase = "full_database"
)

const (
	DispositionAppend  = "append"
	DispositionReplace = "replace"
	DispositionMerge   = "merge"
)

// IncrementalConfig describes a cursor-based incremental read: only rows
// whose cursor column exceeds the recorded value are extracted.
type IncrementalConfig struct {
	CursorPath   string      `json:"cursor_path"`
	InitialValue interface{} `json:"initial_value,omitempty"`
	RowOrder     string      `json:"row_order,omitempty"`
}

// SchemaContract governs how unexpected schema changes at the destination
// are handled. Each field is one of evolve, freeze, discard_value,
// discard_row.
type SchemaContract struct {
	Tables   string `json:"tables,omitempty"`
	Columns  string `json:"columns,omitempty"`
	DataType string `json:"data_type,omitempty"`
}

// Filter is a declarative row filter compiled into a predicate by the
// executor.
type Filter struct {
	Column string      `json:"column"`
	Op     string      `json:"op"`
	Value  interface{} `json:"value"`
}

// RESTAuth configures authentication for the REST API source.
type RESTAuth struct {
	Type   string `json:"type"`
	Token  string `json:"token,omitempty"`
	Header string `json:"header,omitempty"`
}

// Paginator configures pagination for the REST API source.
type Paginator struct {
	Type          string `json:"type"`
	PageParam     string `json:"page_param,omitempty"`
	PageSizeParam string `json:"page_size_param,omitempty"`
	NextPath      string `json:"next_path,omitempty"`
	MaxPages      int    `json:"max_pages,omitempty"`
}

// PipelineConfig is the declarative config object stored on a pipeline.
// The selector and executor consume the internal keys (mode, table,
// source_schema, table_names, incremental, batch_size, filters, bucket_url,
// file_glob, resources, base_url, headers, auth, paginator); the
// passthrough keys (write_disposition, primary_key, schema_contract) are
// forwarded verbatim to the destination via WriteOptions.
type PipelineConfig struct {
	Mode             string             `json:"mode,omitempty"`
	WriteDisposition string             `json:"write_disposition,omitempty"`
	PrimaryKey       string             `json:"primary_key,omitempty"`
	SourceSchema     string             `json:"source_schema,omitempty"`
	Table            string             `json:"table,omitempty"`
	TableNames       []string           `json:"table_names,omitempty"`
	Incremental      *IncrementalConfig `json:"incremental,omitempty"`
	BatchSize        int                `json:"batch_size,omitempty"`
	SchemaContract   *SchemaContract    `json:"schema_contract,omitempty"`
	Filters          []Filter           `json:"filters,omitempty"`
	BucketURL        string             `json:"bucket_url,omitempty"`
	FileGlob         string             `json:"file_glob,omitempty"`
	Resources        []string           `json:"resources,omitempty"`
	BaseURL          string             `json:"base_url,omitempty"`
	Headers          map[string]string  `json:"headers,omitempty"`
	Auth             *RESTAuth          `json:"auth,omitempty"`
	Paginator        *Paginator         `json:"paginator,omitempty"`
}

// ParsePipelineConfig decodes and validates a stored pipeline config.
func ParsePipelineConfig(raw json.RawMessage) (*PipelineConfig, error) {
	cfg := &PipelineConfig{}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, NewConfigError("invalid pipeline config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvedMode returns the configured mode, defaulting to full_database.
func (c *PipelineConfig) ResolvedMode() string {
	if c.Mode == "" {
		return ModeFullDatabase
	}
	return c.Mode
}

// ResolveBatchSize picks the explicit argument, then the configured
// batch_size, then the default.
func (c *PipelineConfig) ResolveBatchSize(explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// WriteOptions returns the passthrough partition of the config.
func (c *PipelineConfig) WriteOptions() WriteOptions {
	return WriteOptions{
		WriteDisposition: c.WriteDisposition,
		PrimaryKey:       c.PrimaryKey,
		SchemaContract:   c.SchemaContract,
	}
}

var contractPolicies = map[string]struct{}{
	"": {}, "evolve": {}, "freeze": {}, "discard_value": {}, "discard_row": {},
}

// Validate enforces the invariants the data model requires before any run
// is created: merge needs a primary key, single_table needs a table, and
// enum-valued fields must hold known values.
func (c *PipelineConfig) Validate() error {
	switch c.Mode {
	case "", ModeSingleTable, ModeFullDatabase:
	default:
		return NewConfigError("invalid mode %q", c.Mode)
	}
	if c.ResolvedMode() == ModeSingleTable && c.Table == "" {
		return NewConfigError("mode single_table requires 'table'")
	}
	if len(c.TableNames) > 0 && c.ResolvedMode() == ModeSingleTable {
		return NewConfigError("'table_names' is only valid in full_database mode")
	}

	switch c.WriteDisposition {
	case "", DispositionAppend, DispositionReplace, DispositionMerge:
	default:
		return NewConfigError("invalid write_disposition %q", c.WriteDisposition)
	}
	if c.WriteDisposition == DispositionMerge && c.PrimaryKey == "" {
		return NewConfigError("write_disposition merge requires 'primary_key'")
	}

	if c.Incremental != nil {
		if c.Incremental.CursorPath == "" {
			return NewConfigError("incremental config requires 'cursor_path'")
		}
		switch c.Incremental.RowOrder {
		case "", "asc", "desc":
		default:
			return NewConfigError("invalid incremental row_order %q", c.Incremental.RowOrder)
		}
	}

	if c.BatchSize < 0 {
		return NewConfigError("batch_size must be positive")
	}

	if c.SchemaContract != nil {
		for field, policy := range map[string]string{
			"tables":    c.SchemaContract.Tables,
			"columns":   c.SchemaContract.Columns,
			"data_type": c.SchemaContract.DataType,
		} {
			if _, ok := contractPolicies[policy]; !ok {
				return NewConfigError("invalid schema_contract.%s policy %q", field, policy)
			}
		}
	}

	for _, f := range c.Filters {
		if f.Column == "" {
			return NewConfigError("filter requires 'column'")
		}
		if _, ok := filterOps[f.Op]; !ok {
			return NewConfigError("unknown filter op %q", f.Op)
		}
	}
	return nil
}
