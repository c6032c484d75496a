package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// columnKind tracks how an adapter flattens a column's values.
type columnKind int

const (
	kindScalar columnKind = iota
	kindNativeArray
	kindJSONArray
)

// PostgresDataSource reads a flat-imported dataset from PostgreSQL.
// Multi-link fields imported as text[] or json/jsonb arrays are treated as
// array-of-identifiers columns and flattened server-side.
type PostgresDataSource struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger

	mu    sync.RWMutex
	kinds map[string]columnKind // "table.column" -> kind
}

var _ DataSource = (*PostgresDataSource)(nil)

// NewPostgresDataSource connects to PostgreSQL and reads from the given
// schema ("public" when empty).
func NewPostgresDataSource(ctx context.Context, connString, schema string, logger *zap.Logger) (*PostgresDataSource, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	return &PostgresDataSource{
		pool:   pool,
		schema: schema,
		logger: logger.Named("postgres-datasource"),
		kinds:  make(map[string]columnKind),
	}, nil
}

// Close implements DataSource.
func (d *PostgresDataSource) Close() error {
	d.pool.Close()
	return nil
}

// QuoteIdentifier implements DataSource.
func (d *PostgresDataSource) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (d *PostgresDataSource) tableRef(table string) string {
	return pgx.Identifier{d.schema}.Sanitize() + "." + pgx.Identifier{table}.Sanitize()
}

// ListTables implements DataSource.
func (d *PostgresDataSource) ListTables(ctx context.Context) ([]models.Table, error) {
	const tablesQuery = `
		SELECT t.table_name, COALESCE(GREATEST(c.reltuples::bigint, 0), 0) AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE' AND t.table_schema = $1
		ORDER BY t.table_name
	`
	rows, err := d.pool.Query(ctx, tablesQuery, d.schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		t.KeyColumn = "id"
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	for i := range tables {
		if err := d.loadColumns(ctx, &tables[i]); err != nil {
			return nil, err
		}
		// Exact row counts: reltuples is an estimate and can lag behind
		// freshly imported data.
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, d.tableRef(tables[i].Name))
		if err := d.pool.QueryRow(ctx, countQuery).Scan(&tables[i].RowCount); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", tables[i].Name, err)
		}
	}
	return tables, nil
}

func (d *PostgresDataSource) loadColumns(ctx context.Context, table *models.Table) error {
	const columnsQuery = `
		SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name
					AND kcu.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`
	rows, err := d.pool.Query(ctx, columnsQuery, d.schema, table.Name)
	if err != nil {
		return fmt.Errorf("query columns of %s: %w", table.Name, err)
	}
	defer rows.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	for rows.Next() {
		var name, dataType string
		var nullable, isPrimary bool
		if err := rows.Scan(&name, &dataType, &nullable, &isPrimary); err != nil {
			return fmt.Errorf("scan column row: %w", err)
		}

		kind := kindScalar
		shape := models.ColumnShapeScalar
		switch dataType {
		case "ARRAY":
			kind = kindNativeArray
			shape = models.ColumnShapeArray
		case "json", "jsonb":
			kind = kindJSONArray
			shape = models.ColumnShapeArray
		}
		d.kinds[table.Name+"."+name] = kind

		if isPrimary {
			table.KeyColumn = name
		}
		table.Columns = append(table.Columns, models.Column{
			Name:     name,
			Shape:    shape,
			Nullable: nullable,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns of %s: %w", table.Name, err)
	}
	return nil
}

func (d *PostgresDataSource) columnKind(ctx context.Context, table, column string) (columnKind, error) {
	d.mu.RLock()
	kind, ok := d.kinds[table+"."+column]
	d.mu.RUnlock()
	if ok {
		return kind, nil
	}
	// Lazy discovery when ProfileColumn is called before ListTables.
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

// cachedKind returns the recorded kind of a column without lazy discovery.
// DDL rendering always follows ListTables, so the map is populated.
func (d *PostgresDataSource) cachedKind(table, column string) columnKind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kinds[table+"."+column]
}

// ArrayElementsFrom implements SQLDialect.
func (d *PostgresDataSource) ArrayElementsFrom(table, column string) (string, string) {
	ref := d.tableRef(table)
	col := pgx.Identifier{column}.Sanitize()
	if d.cachedKind(table, column) == kindJSONArray {
		return fmt.Sprintf(`%s s, LATERAL jsonb_array_elements_text(s.%s::jsonb) AS elem`, ref, col), "elem"
	}
	return fmt.Sprintf(`%s s, LATERAL unnest(s.%s) AS elem`, ref, col), "elem"
}

// ArrayFirstElement implements SQLDialect.
func (d *PostgresDataSource) ArrayFirstElement(table, column string) string {
	col := pgx.Identifier{column}.Sanitize()
	if d.cachedKind(table, column) == kindJSONArray {
		return fmt.Sprintf(`%s::jsonb ->> 0`, col)
	}
	return fmt.Sprintf(`(%s)[1]`, col)
}

// AddForeignKeyStatement implements SQLDialect.
func (d *PostgresDataSource) AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);`,
		d.QuoteIdentifier(table), d.QuoteIdentifier(constraint), d.QuoteIdentifier(column),
		d.QuoteIdentifier(targetTable), d.QuoteIdentifier(targetColumn))
}

// elementSource returns a FROM fragment exposing each flattened element of
// the column as "el", with one row per element per record.
func elementSource(tableRef, quotedCol string, kind columnKind) string {
	switch kind {
	case kindNativeArray:
		return fmt.Sprintf(`%s src, LATERAL unnest(src.%s) AS el`, tableRef, quotedCol)
	case kindJSONArray:
		return fmt.Sprintf(`%s src, LATERAL jsonb_array_elements_text(src.%s::jsonb) AS el`, tableRef, quotedCol)
	default:
		return fmt.Sprintf(`(SELECT %s::text AS el FROM %s WHERE %s IS NOT NULL) src`, quotedCol, tableRef, quotedCol)
	}
}

// ProfileColumn implements DataSource.
func (d *PostgresDataSource) ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tableRef := d.tableRef(table)
	quotedCol := pgx.Identifier{column}.Sanitize()

	var query string
	switch kind {
	case kindNativeArray:
		query = fmt.Sprintf(`
			SELECT
				COUNT(*) AS row_count,
				COUNT(%s) AS non_null_count,
				(SELECT COUNT(DISTINCT el) FROM %s) AS distinct_count,
				COALESCE(MAX(cardinality(%s)), 0) AS max_elements,
				COALESCE(AVG(cardinality(%s)), 0) AS avg_elements
			FROM %s
		`, quotedCol, elementSource(tableRef, quotedCol, kind), quotedCol, quotedCol, tableRef)
	case kindJSONArray:
		query = fmt.Sprintf(`
			SELECT
				COUNT(*) AS row_count,
				COUNT(%s) AS non_null_count,
				(SELECT COUNT(DISTINCT el) FROM %s) AS distinct_count,
				COALESCE(MAX(jsonb_array_length(%s::jsonb)), 0) AS max_elements,
				COALESCE(AVG(jsonb_array_length(%s::jsonb)), 0) AS avg_elements
			FROM %s
		`, quotedCol, elementSource(tableRef, quotedCol, kind), quotedCol, quotedCol, tableRef)
	default:
		query = fmt.Sprintf(`
			SELECT
				COUNT(*) AS row_count,
				COUNT(%s) AS non_null_count,
				COUNT(DISTINCT %s) AS distinct_count,
				CASE WHEN COUNT(%s) > 0 THEN 1 ELSE 0 END AS max_elements,
				CASE WHEN COUNT(%s) > 0 THEN 1.0 ELSE 0 END AS avg_elements
			FROM %s
		`, quotedCol, quotedCol, quotedCol, quotedCol, tableRef)
	}

	var p models.ColumnProfile
	row := d.pool.QueryRow(ctx, query)
	if err := row.Scan(&p.RowCount, &p.NonNullCount, &p.DistinctCount, &p.MaxElementsPerRecord, &p.AvgElementsPerRecord); err != nil {
		return nil, fmt.Errorf("profile %s.%s: %w", table, column, err)
	}
	return &p, nil
}

// ComputeOverlap implements DataSource.
func (d *PostgresDataSource) ComputeOverlap(ctx context.Context, table, column, targetTable, targetKeyColumn string) (*OverlapResult, error) {
	kind, err := d.columnKind(ctx, table, column)
	if err != nil {
		return nil, err
	}

	tableRef := d.tableRef(table)
	tgtRef := d.tableRef(targetTable)
	quotedCol := pgx.Identifier{column}.Sanitize()
	tgtCol := pgx.Identifier{targetKeyColumn}.Sanitize()

	query := fmt.Sprintf(`
		WITH source_vals AS (
			SELECT el::text AS val, COUNT(*) AS refs
			FROM %s
			WHERE el IS NOT NULL
			GROUP BY el::text
			LIMIT $1
		),
		matched_vals AS (
			SELECT s.val, s.refs
			FROM source_vals s
			WHERE EXISTS (SELECT 1 FROM %s t WHERE t.%s::text = s.val)
		)
		SELECT
			(SELECT COUNT(*) FROM source_vals) AS distinct_source,
			(SELECT COUNT(*) FROM matched_vals) AS matched,
			(SELECT COALESCE(MAX(refs), 0) FROM matched_vals) AS max_refs
	`, elementSource(tableRef, quotedCol, kind), tgtRef, tgtCol)

	var result OverlapResult
	row := d.pool.QueryRow(ctx, query, MaxSampleLimit)
	if err := row.Scan(&result.DistinctSourceValues, &result.Matched, &result.MaxRefsPerTarget); err != nil {
		return nil, fmt.Errorf("compute overlap %s.%s -> %s: %w", table, column, targetTable, err)
	}
	return &result, nil
}
