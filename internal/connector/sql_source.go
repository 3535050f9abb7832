package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// sqlSource reads one table or a whole catalog from a relational database.
type sqlSource struct {
	family      Family
	driver      string
	dsn         string
	schema      string
	mode        string
	table       string
	tableNames  []string
	incremental *IncrementalConfig
	batchSize   int

	db *sql.DB
}

func newSQLSource(family Family, config Config, pc *PipelineConfig, batchSize int) (*sqlSource, error) {
	creds := AdaptCredentials(family, config)
	driver, dsn, err := BuildDSN(family, creds)
	if err != nil {
		return nil, err
	}
	src := &sqlSource{
		family:     family,
		driver:     driver,
		dsn:        dsn,
		schema:     pc.SourceSchema,
		mode:       pc.ResolvedMode(),
		table:      pc.Table,
		tableNames: pc.TableNames,
		batchSize:  batchSize,
	}
	if src.mode == ModeSingleTable {
		if src.table == "" {
			return nil, NewConfigError("mode single_table requires 'table'")
		}
		src.incremental = pc.Incremental
	}
	return src, nil
}

func (s *sqlSource) Read(ctx context.Context, sink Sink) error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s source", s.family)
	}
	s.db = db

	tables, err := s.resolveTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := s.readTable(ctx, table, sink); err != nil {
			return errors.Wrapf(err, "failed reading table %s", table)
		}
	}
	return nil
}

func (s *sqlSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlSource) resolveTables(ctx context.Context) ([]string, error) {
	if s.mode == ModeSingleTable {
		return []string{s.table}, nil
	}
	tables, err := s.listTables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list source tables")
	}
	if len(s.tableNames) == 0 {
		return tables, nil
	}
	allowed := make(map[string]struct{}, len(s.tableNames))
	for _, name := range s.tableNames {
		allowed[name] = struct{}{}
	}
	filtered := make([]string, 0, len(s.tableNames))
	for _, table := range tables {
		if _, ok := allowed[table]; ok {
			filtered = append(filtered, table)
		}
	}
	return filtered, nil
}

func (s *sqlSource) listTables(ctx context.Context) ([]string, error) {
	var query string
	var args []interface{}
	switch s.family {
	case FamilySQLite:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case FamilyMySQL:
		schema := s.schema
		if schema == "" {
			query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
		} else {
			query = `SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name`
			args = append(args, schema)
		}
	default:
		schema := s.schema
		if schema == "" {
			schema = "public"
		}
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
		args = append(args, schema)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *sqlSource) readTable(ctx context.Context, table string, sink Sink) error {
	query, args := s.selectQuery(table)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	batch := make([]Row, 0, s.batchSize)
	values := make([]interface{}, len(columns))
	scanTargets := make([]interface{}, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeScanValue(values[i])
		}
		batch = append(batch, row)
		if len(batch) >= s.batchSize {
			if err := sink(ctx, Batch{Table: table, Rows: batch}); err != nil {
				return err
			}
			batch = make([]Row, 0, s.batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return sink(ctx, Batch{Table: table, Rows: batch})
	}
	return nil
}

func (s *sqlSource) selectQuery(table string) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(s.qualifiedTable(table))

	var args []interface{}
	if s.incremental != nil {
		cursor := quoteIdent(s.family, s.incremental.CursorPath)
		if s.incremental.InitialValue != nil {
			sb.WriteString(fmt.Sprintf(" WHERE %s > %s", cursor, s.placeholder(1)))
			args = append(args, s.incremental.InitialValue)
		}
		order := s.incremental.RowOrder
		if order == "" {
			order = "asc"
		}
		sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", cursor, strings.ToUpper(order)))
	}
	return sb.String(), args
}

func (s *sqlSource) qualifiedTable(table string) string {
	quoted := quoteIdent(s.family, table)
	if s.schema != "" && s.family != FamilySQLite {
		return quoteIdent(s.family, s.schema) + "." + quoted
	}
	return quoted
}

func (s *sqlSource) placeholder(n int) string {
	if s.family == FamilyPostgres || s.family == FamilyRedshift {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func quoteIdent(family Family, ident string) string {
	if family == FamilyMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func normalizeScanValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
