package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// MSSQLDataSource reads a flat-imported dataset from SQL Server.
// Multi-link fields imported as JSON array text are flattened with
// OPENJSON.
type MSSQLDataSource struct {
	db     *sql.DB
	schema string
	logger *zap.Logger

	mu    sync.RWMutex
	kinds map[string]columnKind
}

var _ DataSource = (*MSSQLDataSource)(nil)

// NewMSSQLDataSource connects to SQL Server and reads from the given
// schema ("dbo" when empty).
func NewMSSQLDataSource(ctx context.Context, connString, schema string, logger *zap.Logger) (*MSSQLDataSource, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	if schema == "" {
		schema = "dbo"
	}
	return &MSSQLDataSource{
		db:     db,
		schema: schema,
		logger: logger.Named("mssql-datasource"),
		kinds:  make(map[string]columnKind),
	}, nil
}

// Close implements DataSource.
func (d *MSSQLDataSource) Close() error {
	return d.db.Close()
}

// QuoteIdentifier implements DataSource using bracket quoting.
func (d *MSSQLDataSource) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *MSSQLDataSource) tableRef(table string) string {
	return d.QuoteIdentifier(d.schema) + "." + d.QuoteIdentifier(table)
}

// ArrayElementsFrom implements SQLDialect. Array values are JSON text, so
// elements come from OPENJSON.
func (d *MSSQLDataSource) ArrayElementsFrom(table, column string) (string, string) {
	return fmt.Sprintf(`%s s CROSS APPLY OPENJSON(s.%s) je`,
		d.tableRef(table), d.QuoteIdentifier(column)), "je.value"
}

// ArrayFirstElement implements SQLDialect.
func (d *MSSQLDataSource) ArrayFirstElement(table, column string) string {
	return fmt.Sprintf(`JSON_VALUE(%s, '$[0]')`, d.QuoteIdentifier(column))
}

// AddForeignKeyStatement implements SQLDialect.
func (d *MSSQLDataSource) AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);`,
		d.tableRef(table), d.QuoteIdentifier(constraint), d.QuoteIdentifier(column),
		d.tableRef(targetTable), d.QuoteIdentifier(targetColumn))
}

// ListTables implements DataSource.
func (d *MSSQLDataSource) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.name
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1
		ORDER BY t.name
	`, d.schema)
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
		countQuery := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %s`, d.tableRef(name))
		if err := d.db.QueryRowContext(ctx, countQuery).Scan(&t.RowCount); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (d *MSSQLDataSource) loadColumns(ctx context.Context, table *models.Table) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.COLUMN_NAME, c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			CASE WHEN kcu.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			ON tc.TABLE_SCHEMA = c.TABLE_SCHEMA
			AND tc.TABLE_NAME = c.TABLE_NAME
			AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = c.TABLE_SCHEMA
			AND kcu.COLUMN_NAME = c.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`, d.schema, table.Name)
	if err != nil {
		return fmt.Errorf("query columns of %s: %w", table.Name, err)
	}
	defer rows.Close()

	type colInfo struct {
		name     string
		dataType string
		nullable bool
		pk       bool
	}
	var cols []colInfo
	for rows.Next() {
		var c colInfo
		var nullable, pk int
		if err := rows.Scan(&c.name, &c.dataType, &nullable, &pk); err != nil {
			return fmt.Errorf("scan column row: %w", err)
		}
		c.nullable = nullable == 1
		c.pk = pk == 1
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns of %s: %w", table.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cols {
		kind := kindScalar
		if d.isJSONArrayColumn(ctx, table.Name, c.name, c.dataType) {
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

// isJSONArrayColumn samples one non-null value to decide whether a text
// column holds JSON array data. SQL Server has no array type, so flat
// importers store multi-link fields as JSON text.
func (d *MSSQLDataSource) isJSONArrayColumn(ctx context.Context, table, column, dataType string) bool {
	switch strings.ToLower(dataType) {
	case "nvarchar", "varchar", "ntext", "text":
	default:
		return false
	}
	col := d.QuoteIdentifier(column)
	query := fmt.Sprintf(
		`SELECT TOP 1 CASE WHEN ISJSON(%s) = 1 AND LEFT(LTRIM(%s), 1) = '[' THEN 1 ELSE 0 END FROM %s WHERE %s IS NOT NULL`,
		col, col, d.tableRef(table), col)
	var isArray sql.NullInt64
	if err := d.db.QueryRowContext(ctx, query).Scan(&isArray); err != nil {
		return false
	}
	return isArray.Valid && isArray.Int64 == 1
}

func (d *MSSQLDataSource) columnKind(ctx context.Context, table, column string) (columnKind, error) {
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
func (d *MSSQLDataSource) ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tbl := d.tableRef(table)
	col := d.QuoteIdentifier(column)

	var query string
	if kind == kindJSONArray {
		query = fmt.Sprintf(`
			SELECT
				(SELECT COUNT_BIG(*) FROM %[1]s) AS row_count,
				(SELECT COUNT_BIG(%[2]s) FROM %[1]s) AS non_null_count,
				(SELECT COUNT_BIG(DISTINCT je.value) FROM %[1]s CROSS APPLY OPENJSON(%[2]s) je WHERE %[2]s IS NOT NULL) AS distinct_count,
				(SELECT COALESCE(MAX(n.cnt), 0) FROM (SELECT (SELECT COUNT_BIG(*) FROM OPENJSON(%[2]s)) AS cnt FROM %[1]s WHERE %[2]s IS NOT NULL) n) AS max_elements,
				(SELECT COALESCE(AVG(CAST(n.cnt AS FLOAT)), 0) FROM (SELECT (SELECT COUNT_BIG(*) FROM OPENJSON(%[2]s)) AS cnt FROM %[1]s WHERE %[2]s IS NOT NULL) n) AS avg_elements
		`, tbl, col)
	} else {
		query = fmt.Sprintf(`
			SELECT
				COUNT_BIG(*) AS row_count,
				COUNT_BIG(%[2]s) AS non_null_count,
				COUNT_BIG(DISTINCT %[2]s) AS distinct_count,
				CASE WHEN COUNT_BIG(%[2]s) > 0 THEN 1 ELSE 0 END AS max_elements,
				CASE WHEN COUNT_BIG(%[2]s) > 0 THEN 1.0 ELSE 0.0 END AS avg_elements
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
func (d *MSSQLDataSource) ComputeOverlap(ctx context.Context, table, column, targetTable, targetKeyColumn string) (*OverlapResult, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tbl := d.tableRef(table)
	col := d.QuoteIdentifier(column)
	tgt := d.tableRef(targetTable)
	tgtCol := d.QuoteIdentifier(targetKeyColumn)

	var sourceVals string
	if kind == kindJSONArray {
		sourceVals = fmt.Sprintf(
			`SELECT TOP %d CAST(je.value AS NVARCHAR(400)) AS val, COUNT_BIG(*) AS refs
			 FROM %s CROSS APPLY OPENJSON(%s) je
			 WHERE %s IS NOT NULL
			 GROUP BY CAST(je.value AS NVARCHAR(400))`,
			MaxSampleLimit, tbl, col, col)
	} else {
		sourceVals = fmt.Sprintf(
			`SELECT TOP %d CAST(%s AS NVARCHAR(400)) AS val, COUNT_BIG(*) AS refs
			 FROM %s
			 WHERE %s IS NOT NULL
			 GROUP BY CAST(%s AS NVARCHAR(400))`,
			MaxSampleLimit, col, tbl, col, col)
	}

	query := fmt.Sprintf(`
		WITH source_vals AS (%s),
		matched_vals AS (
			SELECT s.val, s.refs
			FROM source_vals s
			WHERE EXISTS (SELECT 1 FROM %s t WHERE CAST(t.%s AS NVARCHAR(400)) = s.val)
		)
		SELECT
			(SELECT COUNT_BIG(*) FROM source_vals),
			(SELECT COUNT_BIG(*) FROM matched_vals),
			(SELECT COALESCE(MAX(refs), 0) FROM matched_vals)
	`, sourceVals, tgt, tgtCol)

	var result OverlapResult
	if err := d.db.QueryRowContext(ctx, query).Scan(
		&result.DistinctSourceValues, &result.Matched, &result.MaxRefsPerTarget); err != nil {
		return nil, fmt.Errorf("compute overlap %s.%s -> %s: %w", table, column, targetTable, err)
	}
	return &result, nil
}
