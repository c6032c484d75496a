package models

// ============================================================================
// Column Shape
// ============================================================================

// ColumnShape describes the physical shape of a column's values.
type ColumnShape string

const (
	// ColumnShapeScalar is a plain single-valued column.
	ColumnShapeScalar ColumnShape = "scalar"
	// ColumnShapeArray is a column holding arrays of opaque identifiers,
	// as produced by flat imports of multi-link fields.
	ColumnShapeArray ColumnShape = "array_of_identifiers"
)

// ValidColumnShapes contains all valid column shape values.
var ValidColumnShapes = []ColumnShape{
	ColumnShapeScalar,
	ColumnShapeArray,
}

// IsValidColumnShape checks if the given shape is valid.
func IsValidColumnShape(s ColumnShape) bool {
	for _, v := range ValidColumnShapes {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Dataset Snapshot
// ============================================================================

// Table is an immutable snapshot of one profiled table at analysis time.
type Table struct {
	Name     string   `json:"name"`
	RowCount int64    `json:"row_count"`
	Columns  []Column `json:"columns"`

	// KeyColumn is the identifier column of the table ("id" unless the
	// adapter reports otherwise). FK proposals default their target field
	// to this column.
	KeyColumn string `json:"key_column"`
}

// Column describes one column of a profiled table, including the
// statistics collected by the dataset profiler.
type Column struct {
	Name     string      `json:"name"`
	Shape    ColumnShape `json:"shape"`
	Nullable bool        `json:"nullable"`

	// Profile statistics. Zero values are valid for columns with no
	// non-null data.
	NonNullCount int64 `json:"non_null_count"`
	// DistinctCount is over flattened elements for array columns.
	DistinctCount int64 `json:"distinct_count"`

	// Elements-per-record measurements. Always 0 or 1 for scalar columns.
	MaxElementsPerRecord int64   `json:"max_elements_per_record"`
	AvgElementsPerRecord float64 `json:"avg_elements_per_record"`

	// ProfileError records a recovered profiling failure for this column.
	// The statistics above are zeroed when it is set.
	ProfileError string `json:"profile_error,omitempty"`
}

// ColumnProfile holds the raw statistics returned by a DataSource for a
// single column, before they are folded into the dataset snapshot.
type ColumnProfile struct {
	RowCount             int64   `json:"row_count"`
	NonNullCount         int64   `json:"non_null_count"`
	DistinctCount        int64   `json:"distinct_count"`
	MaxElementsPerRecord int64   `json:"max_elements_per_record"`
	AvgElementsPerRecord float64 `json:"avg_elements_per_record"`
}

// FindColumn returns the named column of the table, or nil.
func (t *Table) FindColumn(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
