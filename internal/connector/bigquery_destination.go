package connector

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// bigqueryDestination streams rows into BigQuery tables. Only append
// writes are supported; replace and merge require SQL-level control
// the streaming API does not provide.
type bigqueryDestination struct {
	projectID       string
	datasetID       string
	location        string
	credentialsJSON string
	client          *bigquery.Client
	ensured         map[string]bool
}

func newBigQueryDestination(config Config) (*bigqueryDestination, error) {
	projectID := config.stringVal("project_id")
	if projectID == "" {
		return nil, NewConfigError("bigquery destination requires 'project_id'")
	}
	datasetID := config.stringVal("dataset")
	if datasetID == "" {
		datasetID = config.stringVal("dataset_id")
	}
	if datasetID == "" {
		return nil, NewConfigError("bigquery destination requires 'dataset'")
	}
	return &bigqueryDestination{
		projectID:       projectID,
		datasetID:       datasetID,
		location:        config.stringVal("location"),
		credentialsJSON: config.stringVal("credentials_json"),
		ensured:         make(map[string]bool),
	}, nil
}

func (b *bigqueryDestination) Open(ctx context.Context) error {
	var opts []option.ClientOption
	if b.credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(b.credentialsJSON)))
	}
	client, err := bigquery.NewClient(ctx, b.projectID, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create bigquery client")
	}
	b.client = client
	return b.ensureDataset(ctx)
}

func (b *bigqueryDestination) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *bigqueryDestination) Write(ctx context.Context, batch Batch, opts WriteOptions) (int64, error) {
	if len(batch.Rows) == 0 {
		return 0, nil
	}
	if opts.WriteDisposition != "" && opts.WriteDisposition != DispositionAppend {
		return 0, NewConfigError("bigquery destination only supports the append write disposition, got %q", opts.WriteDisposition)
	}

	columns := inferColumns(batch.Rows)
	if err := b.ensureTable(ctx, batch.Table, columns, batch.Rows); err != nil {
		return 0, err
	}

	savers := make([]*bqRowSaver, len(batch.Rows))
	for i, row := range batch.Rows {
		savers[i] = &bqRowSaver{row: row, columns: columns}
	}
	inserter := b.client.Dataset(b.datasetID).Table(batch.Table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return 0, errors.Wrapf(err, "failed to insert into %s.%s", b.datasetID, batch.Table)
	}
	return int64(len(batch.Rows)), nil
}

func (b *bigqueryDestination) ensureDataset(ctx context.Context) error {
	dataset := b.client.Dataset(b.datasetID)
	if _, err := dataset.Metadata(ctx); err == nil {
		return nil
	}
	meta := &bigquery.DatasetMetadata{Location: b.location}
	if err := dataset.Create(ctx, meta); err != nil {
		return errors.Wrapf(err, "failed to create dataset %s", b.datasetID)
	}
	return nil
}

func (b *bigqueryDestination) ensureTable(ctx context.Context, table string, columns []string, rows []Row) error {
	if b.ensured[table] {
		return nil
	}
	tbl := b.client.Dataset(b.datasetID).Table(table)
	if _, err := tbl.Metadata(ctx); err == nil {
		b.ensured[table] = true
		return nil
	}

	schema := make(bigquery.Schema, 0, len(columns))
	for _, col := range columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name: col,
			Type: bqFieldType(columnSample(rows, col)),
		})
	}
	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return errors.Wrapf(err, "failed to create table %s.%s", b.datasetID, table)
	}
	b.ensured[table] = true
	return nil
}

func bqFieldType(sample interface{}) bigquery.FieldType {
	switch sample.(type) {
	case bool:
		return bigquery.BooleanFieldType
	case int, int32, int64:
		return bigquery.IntegerFieldType
	case float32, float64:
		return bigquery.FloatFieldType
	default:
		return bigquery.StringFieldType
	}
}

type bqRowSaver struct {
	row     Row
	columns []string
}

func (s *bqRowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, len(s.columns))
	for _, col := range s.columns {
		v, ok := s.row[col]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case bool, int, int32, int64, float32, float64, string:
			values[col] = val
		default:
			values[col] = fmt.Sprint(val)
		}
	}
	return values, "", nil
}
