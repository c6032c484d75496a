// Package datasource defines the read-only port the inference engine uses
// to reach the profiled dataset, plus adapters for the supported backing
// stores. All statistics are computed server-side where the store allows
// it; adapters never materialize whole columns in memory.
package datasource

import (
	"context"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// MaxSampleLimit is the hard cap on distinct values considered per overlap
// check. Protects the backing store from unbounded aggregation on very
// large tables.
const MaxSampleLimit = 10000

// SQLDialect renders the store-specific fragments of generated SQL.
// Array columns are physically different per store (native arrays in
// postgres, JSON text elsewhere), so element access cannot be spelled
// generically.
type SQLDialect interface {
	// QuoteIdentifier quotes a table or column name in the store's
	// dialect so reserved words and odd characters cannot break
	// generated SQL.
	QuoteIdentifier(name string) string

	// ArrayElementsFrom returns a FROM fragment that joins the table,
	// aliased s, with the flattened elements of its array column, plus
	// the expression yielding each element value within that fragment.
	ArrayElementsFrom(table, column string) (from, element string)

	// ArrayFirstElement returns an expression selecting the first
	// element of the array column on a row of the table.
	ArrayFirstElement(table, column string) string

	// AddForeignKeyStatement returns the statement adding a named
	// foreign key constraint to an existing table, or "" when the store
	// cannot do that without a table rebuild.
	AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string
}

// DataSource is the read-only handle over the imported dataset.
// Each implementation owns its connection and must be closed when done.
type DataSource interface {
	SQLDialect

	// ListTables returns snapshots of all tables: names, row counts, key
	// columns, and column names/shapes/nullability. Column statistics are
	// left zeroed; the profiler fills them via ProfileColumn.
	ListTables(ctx context.Context) ([]models.Table, error)

	// ProfileColumn computes statistics for one column with a single
	// bounded aggregate query. Columns with zero non-null values yield a
	// zeroed profile, not an error. For array-shaped columns the distinct
	// count is over flattened elements.
	ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error)

	// ComputeOverlap measures how many of the source column's distinct
	// non-null values (flattened for array columns) appear in the target
	// table's key column, and how often the most-referenced target value
	// is referenced. MaxRefsPerTarget is 0 when the store cannot compute
	// the inverse side.
	ComputeOverlap(ctx context.Context, table, column, targetTable, targetKeyColumn string) (*OverlapResult, error)

	// Close releases the connection.
	Close() error
}

// OverlapResult is the outcome of one referential overlap check.
type OverlapResult struct {
	DistinctSourceValues int64 `json:"distinct_source_values"`
	Matched              int64 `json:"matched"`
	// MaxRefsPerTarget is the highest number of source rows referencing a
	// single target value. 0 means unknown.
	MaxRefsPerTarget int64 `json:"max_refs_per_target"`
}
