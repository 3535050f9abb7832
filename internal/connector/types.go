package connector

import "context"

// Config is a decrypted connection configuration blob.
type Config map[string]interface{}

// Row is a single extracted record.
type Row map[string]interface{}

// Batch is a slice of rows belonging to one destination table.
type Batch struct {
	Table string
	Rows  []Row
}

// Sink receives batches from a source. Returning an error aborts the read.
type Sink func(ctx context.Context, batch Batch) error

// Source streams batches of rows. Read blocks until the source is
// exhausted or the sink returns an error.
type Source interface {
	Read(ctx context.Context, sink Sink) error
	Close() error
}

// WriteOptions carries the pipeline config keys forwarded verbatim to the
// destination (the passthrough partition) plus the destination dataset.
type WriteOptions struct {
	WriteDisposition string
	PrimaryKey       string
	SchemaContract   *SchemaContract
	Dataset          string
}

// Destination accepts batches of rows. Write returns the number of rows
// actually delivered, which may be lower than len(batch.Rows) when the
// schema contract discards rows.
type Destination interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, batch Batch, opts WriteOptions) (int64, error)
	Close() error
}

// RowPredicate reports whether a row passes a declarative filter.
type RowPredicate func(Row) bool

type filteredSource struct {
	inner Source
	preds []RowPredicate
}

// ApplyFilters installs row predicates on a source. Rows failing any
// predicate are dropped before they reach the destination.
func ApplyFilters(src Source, preds []RowPredicate) Source {
	if len(preds) == 0 {
		return src
	}
	return &filteredSource{inner: src, preds: preds}
}

func (f *filteredSource) Read(ctx context.Context, sink Sink) error {
	return f.inner.Read(ctx, func(ctx context.Context, batch Batch) error {
		kept := make([]Row, 0, len(batch.Rows))
	rows:
		for _, row := range batch.Rows {
			for _, pred := range f.preds {
				if !pred(row) {
					continue rows
				}
			}
			kept = append(kept, row)
		}
		if len(kept) == 0 {
			return nil
		}
		return sink(ctx, Batch{Table: batch.Table, Rows: kept})
	})
}

func (f *filteredSource) Close() error { return f.inner.Close() }
