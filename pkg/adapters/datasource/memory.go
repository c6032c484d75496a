package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// MemoryTable is one table of an in-memory dataset. Row values are nil,
// string (scalar), or []string (array of identifiers).
type MemoryTable struct {
	Name      string
	KeyColumn string
	Columns   []MemoryColumn
	Rows      []map[string]any
}

// MemoryColumn declares one column of a MemoryTable.
type MemoryColumn struct {
	Name     string
	Shape    models.ColumnShape
	Nullable bool
}

// MemoryDataSource is an in-memory DataSource over literal row data.
// Used in tests and for small local snapshots that fit in memory.
type MemoryDataSource struct {
	tables []MemoryTable
}

var _ DataSource = (*MemoryDataSource)(nil)

// NewMemoryDataSource creates a DataSource over the given tables.
func NewMemoryDataSource(tables []MemoryTable) *MemoryDataSource {
	return &MemoryDataSource{tables: tables}
}

func (m *MemoryDataSource) findTable(name string) *MemoryTable {
	for i := range m.tables {
		if m.tables[i].Name == name {
			return &m.tables[i]
		}
	}
	return nil
}

// ListTables implements DataSource.
func (m *MemoryDataSource) ListTables(ctx context.Context) ([]models.Table, error) {
	out := make([]models.Table, 0, len(m.tables))
	for _, t := range m.tables {
		key := t.KeyColumn
		if key == "" {
			key = "id"
		}
		snapshot := models.Table{
			Name:      t.Name,
			RowCount:  int64(len(t.Rows)),
			KeyColumn: key,
		}
		for _, c := range t.Columns {
			snapshot.Columns = append(snapshot.Columns, models.Column{
				Name:     c.Name,
				Shape:    c.Shape,
				Nullable: c.Nullable,
			})
		}
		out = append(out, snapshot)
	}
	return out, nil
}

// ProfileColumn implements DataSource.
func (m *MemoryDataSource) ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error) {
	t := m.findTable(table)
	if t == nil {
		return nil, fmt.Errorf("profile column: unknown table %q", table)
	}
	known := false
	for _, c := range t.Columns {
		if c.Name == column {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("profile column: unknown column %q.%q", table, column)
	}

	profile := &models.ColumnProfile{RowCount: int64(len(t.Rows))}
	distinct := make(map[string]struct{})
	var totalElements int64
	for _, row := range t.Rows {
		elements := flattenValue(row[column])
		if len(elements) == 0 {
			continue
		}
		profile.NonNullCount++
		totalElements += int64(len(elements))
		if int64(len(elements)) > profile.MaxElementsPerRecord {
			profile.MaxElementsPerRecord = int64(len(elements))
		}
		for _, el := range elements {
			distinct[el] = struct{}{}
		}
	}
	profile.DistinctCount = int64(len(distinct))
	if profile.NonNullCount > 0 {
		profile.AvgElementsPerRecord = float64(totalElements) / float64(profile.NonNullCount)
	}
	return profile, nil
}

// ComputeOverlap implements DataSource.
func (m *MemoryDataSource) ComputeOverlap(ctx context.Context, table, column, targetTable, targetKeyColumn string) (*OverlapResult, error) {
	src := m.findTable(table)
	if src == nil {
		return nil, fmt.Errorf("compute overlap: unknown table %q", table)
	}
	tgt := m.findTable(targetTable)
	if tgt == nil {
		return nil, fmt.Errorf("compute overlap: unknown table %q", targetTable)
	}

	targetKeys := make(map[string]struct{}, len(tgt.Rows))
	for _, row := range tgt.Rows {
		for _, el := range flattenValue(row[targetKeyColumn]) {
			targetKeys[el] = struct{}{}
		}
	}

	refCounts := make(map[string]int64)
	distinct := make(map[string]struct{})
	for _, row := range src.Rows {
		for _, el := range flattenValue(row[column]) {
			distinct[el] = struct{}{}
			refCounts[el]++
		}
	}

	result := &OverlapResult{DistinctSourceValues: int64(len(distinct))}
	for val := range distinct {
		if _, ok := targetKeys[val]; ok {
			result.Matched++
			if refCounts[val] > result.MaxRefsPerTarget {
				result.MaxRefsPerTarget = refCounts[val]
			}
		}
	}
	return result, nil
}

// QuoteIdentifier implements DataSource using double-quote quoting.
func (m *MemoryDataSource) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ArrayElementsFrom implements SQLDialect. There is no SQL engine behind
// this source, so previews use generic array syntax.
func (m *MemoryDataSource) ArrayElementsFrom(table, column string) (string, string) {
	return fmt.Sprintf(`%s s, unnest(s.%s) AS elem`,
		m.QuoteIdentifier(table), m.QuoteIdentifier(column)), "elem"
}

// ArrayFirstElement implements SQLDialect.
func (m *MemoryDataSource) ArrayFirstElement(table, column string) string {
	return fmt.Sprintf(`(%s)[1]`, m.QuoteIdentifier(column))
}

// AddForeignKeyStatement implements SQLDialect.
func (m *MemoryDataSource) AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);`,
		m.QuoteIdentifier(table), m.QuoteIdentifier(constraint), m.QuoteIdentifier(column),
		m.QuoteIdentifier(targetTable), m.QuoteIdentifier(targetColumn))
}

// Close implements DataSource.
func (m *MemoryDataSource) Close() error { return nil }

// flattenValue normalizes a cell into its identifier elements: nil and
// empty strings flatten to nothing, scalars to one element, arrays to
// their elements.
func flattenValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		out := make([]string, 0, len(val))
		for _, el := range val {
			if el != "" {
				out = append(out, el)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, el := range val {
			if s, ok := el.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}
