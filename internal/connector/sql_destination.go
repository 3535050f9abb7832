package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// sqlDestination loads rows into a relational database or warehouse. The
// table schema is inferred from the first batch and evolved, frozen, or
// trimmed afterward according to the schema contract.
type sqlDestination struct {
	family Family
	driver string
	dsn    string

	db     *sql.DB
	tables map[string]*destTable
}

type destTable struct {
	columns []string
	colSet  map[string]struct{}
	// replaced tracks whether the replace disposition already truncated
	// this table during the current load.
	replaced bool
}

func newSQLDestination(family Family, config Config) (*sqlDestination, error) {
	creds := AdaptCredentials(family, config)
	driver, dsn, err := BuildDSN(family, creds)
	if err != nil {
		return nil, err
	}
	return &sqlDestination{
		family: family,
		driver: driver,
		dsn:    dsn,
		tables: make(map[string]*destTable),
	}, nil
}

func (d *sqlDestination) Open(ctx context.Context) error {
	db, err := sql.Open(d.driver, d.dsn)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s destination", d.family)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrapf(err, "failed to reach %s destination", d.family)
	}
	d.db = db
	return nil
}

func (d *sqlDestination) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *sqlDestination) Write(ctx context.Context, batch Batch, opts WriteOptions) (int64, error) {
	if len(batch.Rows) == 0 {
		return 0, nil
	}
	if opts.WriteDisposition == DispositionMerge && !d.supportsMerge() {
		return 0, NewConfigError("write_disposition merge is not supported for %s destinations", d.family)
	}

	state, err := d.ensureTable(ctx, batch, opts)
	if err != nil {
		return 0, err
	}

	rows, err := d.applyContract(ctx, batch, state, opts)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if opts.WriteDisposition == DispositionReplace && !state.replaced {
		if _, err := d.db.ExecContext(ctx, "DELETE FROM "+d.tableRef(batch.Table, opts)); err != nil {
			return 0, errors.Wrapf(err, "failed to truncate %s", batch.Table)
		}
		state.replaced = true
	}

	return d.insertRows(ctx, batch.Table, rows, state, opts)
}

func (d *sqlDestination) supportsMerge() bool {
	switch d.family {
	case FamilyPostgres, FamilyMySQL, FamilySQLite:
		return true
	}
	return false
}

func (d *sqlDestination) ensureTable(ctx context.Context, batch Batch, opts WriteOptions) (*destTable, error) {
	key := d.tableRef(batch.Table, opts)
	if state, ok := d.tables[key]; ok {
		return state, nil
	}

	if opts.Dataset != "" && d.supportsSchemas() {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + quoteIdent(d.family, opts.Dataset)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrapf(err, "failed to create dataset schema %s", opts.Dataset)
		}
	}

	columns := inferColumns(batch.Rows)
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, quoteIdent(d.family, col)+" "+d.columnType(columnSample(batch.Rows, col)))
	}
	if opts.WriteDisposition == DispositionMerge && opts.PrimaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(d.family, opts.PrimaryKey)))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", key, strings.Join(defs, ", "))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return nil, errors.Wrapf(err, "failed to create table %s", batch.Table)
	}

	state := &destTable{columns: columns, colSet: make(map[string]struct{}, len(columns))}
	for _, col := range columns {
		state.colSet[col] = struct{}{}
	}
	d.tables[key] = state
	return state, nil
}

// applyContract reconciles rows carrying columns the table does not have
// with the configured schema contract. Default policy is evolve.
func (d *sqlDestination) applyContract(ctx context.Context, batch Batch, state *destTable, opts WriteOptions) ([]Row, error) {
	policy := "evolve"
	if opts.SchemaContract != nil && opts.SchemaContract.Columns != "" {
		policy = opts.SchemaContract.Columns
	}

	rows := batch.Rows
	switch policy {
	case "evolve":
		for _, row := range rows {
			for col := range row {
				if _, ok := state.colSet[col]; ok {
					continue
				}
				stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
					d.tableRef(batch.Table, opts), quoteIdent(d.family, col), d.columnType(row[col]))
				if _, err := d.db.ExecContext(ctx, stmt); err != nil {
					return nil, errors.Wrapf(err, "failed to evolve schema for %s", batch.Table)
				}
				state.columns = append(state.columns, col)
				state.colSet[col] = struct{}{}
			}
		}
	case "freeze":
		for _, row := range rows {
			for col := range row {
				if _, ok := state.colSet[col]; !ok {
					return nil, NewConfigError("schema contract freeze: unexpected column %q in table %s", col, batch.Table)
				}
			}
		}
	case "discard_value":
		// Unknown columns are simply never written; nothing to do.
	case "discard_row":
		kept := make([]Row, 0, len(rows))
	rowLoop:
		for _, row := range rows {
			for col := range row {
				if _, ok := state.colSet[col]; !ok {
					continue rowLoop
				}
			}
			kept = append(kept, row)
		}
		rows = kept
	}
	return rows, nil
}

func (d *sqlDestination) insertRows(ctx context.Context, table string, rows []Row, state *destTable, opts WriteOptions) (int64, error) {
	cols := state.columns
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(d.family, col)
	}
	placeholders := make([]string, len(cols))

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin load transaction")
	}
	defer tx.Rollback()

	var written int64
	for _, row := range rows {
		args := make([]interface{}, len(cols))
		for i, col := range cols {
			args[i] = row[col]
			placeholders[i] = d.placeholder(i + 1)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
			d.tableRef(table, opts),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
			d.conflictClause(cols, opts))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, errors.Wrapf(err, "failed to insert into %s", table)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit load transaction")
	}
	return written, nil
}

// conflictClause implements the merge disposition per dialect.
func (d *sqlDestination) conflictClause(cols []string, opts WriteOptions) string {
	if opts.WriteDisposition != DispositionMerge || opts.PrimaryKey == "" {
		return ""
	}
	updates := make([]string, 0, len(cols))
	switch d.family {
	case FamilyMySQL:
		for _, col := range cols {
			if col == opts.PrimaryKey {
				continue
			}
			q := quoteIdent(d.family, col)
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
		if len(updates) == 0 {
			return ""
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	default:
		for _, col := range cols {
			if col == opts.PrimaryKey {
				continue
			}
			q := quoteIdent(d.family, col)
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
		if len(updates) == 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdent(d.family, opts.PrimaryKey))
		}
		return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			quoteIdent(d.family, opts.PrimaryKey), strings.Join(updates, ", "))
	}
}

func (d *sqlDestination) tableRef(table string, opts WriteOptions) string {
	quoted := quoteIdent(d.family, table)
	if opts.Dataset != "" && d.supportsSchemas() {
		return quoteIdent(d.family, opts.Dataset) + "." + quoted
	}
	return quoted
}

func (d *sqlDestination) supportsSchemas() bool {
	switch d.family {
	case FamilyPostgres, FamilyRedshift, FamilySnowflake:
		return true
	}
	return false
}

func (d *sqlDestination) placeholder(n int) string {
	if d.family == FamilyPostgres || d.family == FamilyRedshift {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d *sqlDestination) columnType(sample interface{}) string {
	switch sample.(type) {
	case bool:
		if d.family == FamilyMySQL {
			return "TINYINT(1)"
		}
		return "BOOLEAN"
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		if d.family == FamilyMySQL {
			return "DOUBLE"
		}
		return "DOUBLE PRECISION"
	case time.Time:
		if d.family == FamilyMySQL {
			return "DATETIME"
		}
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func inferColumns(rows []Row) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			set[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(set))
	for col := range set {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

func columnSample(rows []Row, col string) interface{} {
	for _, row := range rows {
		if v, ok := row[col]; ok && v != nil {
			return v
		}
	}
	return nil
}
