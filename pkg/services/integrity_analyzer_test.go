package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

func integrityFixture() *datasource.MemoryDataSource {
	customers := datasource.MemoryTable{
		Name:      "customers",
		KeyColumn: "id",
		Columns:   []datasource.MemoryColumn{{Name: "id", Shape: models.ColumnShapeScalar}},
	}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		customers.Rows = append(customers.Rows, map[string]any{"id": id})
	}

	orders := datasource.MemoryTable{
		Name:      "orders",
		KeyColumn: "id",
		Columns: []datasource.MemoryColumn{
			{Name: "id", Shape: models.ColumnShapeScalar},
			{Name: "customer_ref", Shape: models.ColumnShapeScalar, Nullable: true},
		},
	}
	refs := []string{"c1", "c2", "c3", "c4", "c5", "bogus", "c1", "c1"}
	for i, ref := range refs {
		orders.Rows = append(orders.Rows, map[string]any{"id": string(rune('a' + i)), "customer_ref": ref})
	}

	return datasource.NewMemoryDataSource([]datasource.MemoryTable{customers, orders})
}

func TestIntegrityAnalyzer_MeasuresOverlap(t *testing.T) {
	analyzer := NewReferentialIntegrityAnalyzer(integrityFixture(), DefaultAnalysisConfig(), zap.NewNop())

	candidate := &models.CandidateRelationship{
		SourceTable:  "orders",
		SourceColumn: "customer_ref",
		TargetTable:  "customers",
	}

	result, err := analyzer.Analyze(context.Background(), candidate, "id")
	require.NoError(t, err)
	require.NotNil(t, result)

	// 6 distinct values (c1..c5, bogus), 5 matched, c1 referenced 3x.
	assert.Equal(t, int64(6), result.DistinctSourceValues)
	assert.Equal(t, int64(5), result.Matched)
	assert.InDelta(t, 83.33, result.IntegrityPct, 0.01)
	assert.Equal(t, int64(3), result.MaxRefsPerTarget)
}

func TestIntegrityAnalyzer_MinimumSampleGuard(t *testing.T) {
	customers := datasource.MemoryTable{
		Name:      "customers",
		KeyColumn: "id",
		Columns:   []datasource.MemoryColumn{{Name: "id", Shape: models.ColumnShapeScalar}},
		Rows: []map[string]any{
			{"id": "c1"}, {"id": "c2"},
		},
	}
	orders := datasource.MemoryTable{
		Name:      "orders",
		KeyColumn: "id",
		Columns: []datasource.MemoryColumn{
			{Name: "id", Shape: models.ColumnShapeScalar},
			{Name: "customer_ref", Shape: models.ColumnShapeScalar},
		},
		Rows: []map[string]any{
			{"id": "a", "customer_ref": "c1"},
			{"id": "b", "customer_ref": "c2"},
		},
	}
	source := datasource.NewMemoryDataSource([]datasource.MemoryTable{customers, orders})
	analyzer := NewReferentialIntegrityAnalyzer(source, DefaultAnalysisConfig(), zap.NewNop())

	candidate := &models.CandidateRelationship{
		SourceTable:  "orders",
		SourceColumn: "customer_ref",
		TargetTable:  "customers",
	}

	// Only 2 distinct values: below the 5-distinct floor, no verdict and
	// no error.
	result, err := analyzer.Analyze(context.Background(), candidate, "id")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestIntegrityAnalyzer_QueryFailureIsWrapped(t *testing.T) {
	analyzer := NewReferentialIntegrityAnalyzer(integrityFixture(), DefaultAnalysisConfig(), zap.NewNop())

	candidate := &models.CandidateRelationship{
		SourceTable:  "orders",
		SourceColumn: "customer_ref",
		TargetTable:  "no_such_table",
	}

	result, err := analyzer.Analyze(context.Background(), candidate, "id")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "compute overlap")
}

func TestIntegrityAnalyzer_CancelledContext(t *testing.T) {
	analyzer := NewReferentialIntegrityAnalyzer(integrityFixture(), DefaultAnalysisConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	candidate := &models.CandidateRelationship{
		SourceTable:  "orders",
		SourceColumn: "customer_ref",
		TargetTable:  "customers",
	}
	_, err := analyzer.Analyze(ctx, candidate, "id")
	assert.ErrorIs(t, err, context.Canceled)
}
