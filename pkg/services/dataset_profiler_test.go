package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/cache"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// countingSource counts ListTables calls to observe cache behavior.
type countingSource struct {
	*datasource.MemoryDataSource
	listCalls int
}

func (c *countingSource) ListTables(ctx context.Context) ([]models.Table, error) {
	c.listCalls++
	return c.MemoryDataSource.ListTables(ctx)
}

// faultyProfileSource fails ProfileColumn for one column.
type faultyProfileSource struct {
	*datasource.MemoryDataSource
	failColumn string
}

func (f *faultyProfileSource) ProfileColumn(ctx context.Context, table, column string) (*models.ColumnProfile, error) {
	if column == f.failColumn {
		return nil, errors.New("stats query timed out")
	}
	return f.MemoryDataSource.ProfileColumn(ctx, table, column)
}

func profilerFixture() *datasource.MemoryDataSource {
	posts := datasource.MemoryTable{
		Name:      "posts",
		KeyColumn: "id",
		Columns: []datasource.MemoryColumn{
			{Name: "id", Shape: models.ColumnShapeScalar},
			{Name: "tags", Shape: models.ColumnShapeArray, Nullable: true},
			{Name: "draft_of", Shape: models.ColumnShapeScalar, Nullable: true},
		},
		Rows: []map[string]any{
			{"id": "p1", "tags": []string{"t1", "t2", "t3"}},
			{"id": "p2", "tags": []string{"t1"}},
			{"id": "p3", "tags": nil, "draft_of": nil},
		},
	}
	return datasource.NewMemoryDataSource([]datasource.MemoryTable{posts})
}

func TestDatasetProfiler_FillsColumnStatistics(t *testing.T) {
	schemaCache := cache.New[[]models.Table](4, time.Minute)
	profiler := NewDatasetProfiler(profilerFixture(), schemaCache, zap.NewNop())

	tables, err := profiler.ProfileDataset(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	posts := tables[0]
	assert.Equal(t, int64(3), posts.RowCount)

	tags := posts.FindColumn("tags")
	require.NotNil(t, tags)
	assert.Equal(t, int64(2), tags.NonNullCount)
	assert.Equal(t, int64(3), tags.DistinctCount)
	assert.Equal(t, int64(3), tags.MaxElementsPerRecord)
	assert.InDelta(t, 2.0, tags.AvgElementsPerRecord, 1e-9)

	// Zero non-null values yield zero stats, not an error.
	draftOf := posts.FindColumn("draft_of")
	require.NotNil(t, draftOf)
	assert.Equal(t, int64(0), draftOf.NonNullCount)
	assert.Equal(t, int64(0), draftOf.DistinctCount)
}

func TestDatasetProfiler_RecordsFailedColumnProfiles(t *testing.T) {
	source := &faultyProfileSource{MemoryDataSource: profilerFixture(), failColumn: "tags"}
	schemaCache := cache.New[[]models.Table](4, time.Minute)
	profiler := NewDatasetProfiler(source, schemaCache, zap.NewNop())

	tables, err := profiler.ProfileDataset(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	tags := tables[0].FindColumn("tags")
	require.NotNil(t, tags)
	assert.Contains(t, tags.ProfileError, "stats query timed out")
	assert.Equal(t, int64(0), tags.NonNullCount)

	// Other columns still profile normally.
	id := tables[0].FindColumn("id")
	require.NotNil(t, id)
	assert.Empty(t, id.ProfileError)
	assert.Equal(t, int64(3), id.NonNullCount)
}

func TestDatasetProfiler_UsesCachedSnapshot(t *testing.T) {
	source := &countingSource{MemoryDataSource: profilerFixture()}
	schemaCache := cache.New[[]models.Table](4, time.Minute)
	profiler := NewDatasetProfiler(source, schemaCache, zap.NewNop())

	_, err := profiler.ProfileDataset(context.Background(), nil)
	require.NoError(t, err)
	_, err = profiler.ProfileDataset(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, source.listCalls)
}

func TestDatasetProfiler_ReportsProgress(t *testing.T) {
	schemaCache := cache.New[[]models.Table](4, time.Minute)
	profiler := NewDatasetProfiler(profilerFixture(), schemaCache, zap.NewNop())

	var seen []string
	_, err := profiler.ProfileDataset(context.Background(), func(current, total int, tableName string) {
		seen = append(seen, tableName)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"posts"}, seen)
}

func TestDatasetProfiler_Cancellation(t *testing.T) {
	schemaCache := cache.New[[]models.Table](4, time.Minute)
	profiler := NewDatasetProfiler(profilerFixture(), schemaCache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := profiler.ProfileDataset(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
