package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// SQLiteDataSource reads a flat-imported dataset from a SQLite file.
// Multi-link fields imported as JSON array text are flattened with
// json_each.
type SQLiteDataSource struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.RWMutex
	kinds map[string]columnKind
}

var _ DataSource = (*SQLiteDataSource)(nil)

// NewSQLiteDataSource opens the SQLite database at path.
func NewSQLiteDataSource(ctx context.Context, path string, logger *zap.Logger) (*SQLiteDataSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &SQLiteDataSource{
		db:     db,
		logger: logger.Named("sqlite-datasource"),
		kinds:  make(map[string]columnKind),
	}, nil
}

// Close implements DataSource.
func (d *SQLiteDataSource) Close() error {
	return d.db.Close()
}

// QuoteIdentifier implements DataSource.
func (d *SQLiteDataSource) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ArrayElementsFrom implements SQLDialect. Array values are JSON text, so
// elements come from json_each; a NULL column contributes no rows.
func (d *SQLiteDataSource) ArrayElementsFrom(table, column string) (string, string) {
	return fmt.Sprintf(`%s s, json_each(s.%s) je`,
		d.QuoteIdentifier(table), d.QuoteIdentifier(column)), "je.value"
}

// ArrayFirstElement implements SQLDialect.
func (d *SQLiteDataSource) ArrayFirstElement(table, column string) string {
	return fmt.Sprintf(`json_extract(%s, '$[0]')`, d.QuoteIdentifier(column))
}

// AddForeignKeyStatement implements SQLDialect. SQLite cannot add a
// constraint to an existing table without rebuilding it, so the preview
// omits the statement.
func (d *SQLiteDataSource) AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string {
	return ""
}

// ListTables implements DataSource.
func (d *SQLiteDataSource) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	tables := make([]models.Table, 0, len(names))
	for _, name := range names {
		t := models.Table{Name: name, KeyColumn: "id"}
		if err := d.loadColumns(ctx, &t); err != nil {
			return nil, err
		}
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, d.QuoteIdentifier(name))
		if err := d.db.QueryRowContext(ctx, countQuery).Scan(&t.RowCount); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (d *SQLiteDataSource) loadColumns(ctx context.Context, table *models.Table) error {
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, d.QuoteIdentifier(table.Name))
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("table_info of %s: %w", table.Name, err)
	}
	defer rows.Close()

	type colInfo struct {
		name     string
		declType string
		nullable bool
		pk       bool
	}
	var cols []colInfo
	for rows.Next() {
		var cid int
		var name, declType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table_info row: %w", err)
		}
		cols = append(cols, colInfo{name: name, declType: declType, nullable: notNull == 0, pk: pk > 0})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table_info of %s: %w", table.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cols {
		kind := kindScalar
		if d.isJSONArrayColumn(ctx, table.Name, c.name, c.declType) {
			kind = kindJSONArray
		}
		d.kinds[table.Name+"."+c.name] = kind

		shape := models.ColumnShapeScalar
		if kind == kindJSONArray {
			shape = models.ColumnShapeArray
		}
		if c.pk {
			table.KeyColumn = c.name
		}
		table.Columns = append(table.Columns, models.Column{
			Name:     c.name,
			Shape:    shape,
			Nullable: c.nullable,
		})
	}
	return nil
}

// isJSONArrayColumn reports whether the column holds JSON array text.
// SQLite has no array type: flat importers store multi-link fields as JSON
// text, so a sampled non-null value that parses as a JSON array marks the
// whole column.
func (d *SQLiteDataSource) isJSONArrayColumn(ctx context.Context, table, column, declType string) bool {
	upper := strings.ToUpper(declType)
	if !strings.Contains(upper, "TEXT") && !strings.Contains(upper, "JSON") && upper != "" {
		return false
	}
	query := fmt.Sprintf(`SELECT json_valid(%s) AND json_type(%s) = 'array' FROM %s WHERE %s IS NOT NULL LIMIT 1`,
		d.QuoteIdentifier(column), d.QuoteIdentifier(column), d.QuoteIdentifier(table), d.QuoteIdentifier(column))
	var isArray sql.NullBool
	if err := d.db.QueryRowContext(ctx, query).Scan(&isArray); err != nil {
		return false
	}
	return isArray.Valid && isArray.Bool
}

func (d *SQLiteDataSource) columnKind(ctx context.Context, table, column string) (columnKind, error) {
	d.mu.RLock()
	kind, ok := d.kinds[table+"."+column]
	d.mu.RUnlock()
	if ok {
		return kind, nil
	}
	t := models.Table{Name: table}
	if err := d.loadColumns(ctx, &t); err != nil {
		return kindScalar, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	kind, ok = d.kinds[table+"."+column]
	if !ok {
		return kindScalar, fmt.Errorf("unknown column %q.%q", table, column)
	}
	return kind, nil
}

// ProfileColumn implements DataSource.
func (d *SQLiteDataSource) ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tbl := d.QuoteIdentifier(table)
	col := d.QuoteIdentifier(column)

	var query string
	if kind == kindJSONArray {
		query = fmt.Sprintf(`
			SELECT
				(SELECT COUNT(*) FROM %[1]s) AS row_count,
				(SELECT COUNT(%[2]s) FROM %[1]s) AS non_null_count,
				(SELECT COUNT(DISTINCT je.value) FROM %[1]s, json_each(%[1]s.%[2]s) je WHERE %[1]s.%[2]s IS NOT NULL) AS distinct_count,
				(SELECT COALESCE(MAX(json_array_length(%[2]s)), 0) FROM %[1]s WHERE %[2]s IS NOT NULL) AS max_elements,
				(SELECT COALESCE(AVG(json_array_length(%[2]s)), 0) FROM %[1]s WHERE %[2]s IS NOT NULL) AS avg_elements
		`, tbl, col)
	} else {
		query = fmt.Sprintf(`
			SELECT
				COUNT(*) AS row_count,
				COUNT(%[2]s) AS non_null_count,
				COUNT(DISTINCT %[2]s) AS distinct_count,
				CASE WHEN COUNT(%[2]s) > 0 THEN 1 ELSE 0 END AS max_elements,
				CASE WHEN COUNT(%[2]s) > 0 THEN 1.0 ELSE 0.0 END AS avg_elements
			FROM %[1]s
		`, tbl, col)
	}

	var p models.ColumnProfile
	if err := d.db.QueryRowContext(ctx, query).Scan(
		&p.RowCount, &p.NonNullCount, &p.DistinctCount, &p.MaxElementsPerRecord, &p.AvgElementsPerRecord); err != nil {
		return nil, fmt.Errorf("profile %s.%s: %w", table, column, err)
	}
	return &p, nil
}

// ComputeOverlap implements DataSource.
func (d *SQLiteDataSource) ComputeOverlap(ctx context.Context, table, column, targetTable, targetKeyColumn string) (*OverlapResult, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tbl := d.QuoteIdentifier(table)
	col := d.QuoteIdentifier(column)
	tgt := d.QuoteIdentifier(targetTable)
	tgtCol := d.QuoteIdentifier(targetKeyColumn)

	var sourceVals string
	if kind == kindJSONArray {
		sourceVals = fmt.Sprintf(
			`SELECT CAST(je.value AS TEXT) AS val, COUNT(*) AS refs
			 FROM %s, json_each(%s.%s) je
			 WHERE %s.%s IS NOT NULL
			 GROUP BY CAST(je.value AS TEXT)
			 LIMIT %d`,
			tbl, tbl, col, tbl, col, MaxSampleLimit)
	} else {
		sourceVals = fmt.Sprintf(
			`SELECT CAST(%s AS TEXT) AS val, COUNT(*) AS refs
			 FROM %s
			 WHERE %s IS NOT NULL
			 GROUP BY CAST(%s AS TEXT)
			 LIMIT %d`,
			col, tbl, col, col, MaxSampleLimit)
	}

	query := fmt.Sprintf(`
		WITH source_vals AS (%s),
		matched_vals AS (
			SELECT s.val, s.refs
			FROM source_vals s
			WHERE EXISTS (SELECT 1 FROM %s t WHERE CAST(t.%s AS TEXT) = s.val)
		)
		SELECT
			(SELECT COUNT(*) FROM source_vals),
			(SELECT COUNT(*) FROM matched_vals),
			(SELECT COALESCE(MAX(refs), 0) FROM matched_vals)
	`, sourceVals, tgt, tgtCol)

	var result OverlapResult
	if err := d.db.QueryRowContext(ctx, query).Scan(
		&result.DistinctSourceValues, &result.Matched, &result.MaxRefsPerTarget); err != nil {
		return nil, fmt.Errorf("compute overlap %s.%s -> %s: %w", table, column, targetTable, err)
	}
	return &result, nil
}
