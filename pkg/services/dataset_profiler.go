package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/cache"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// tableListCacheKey memoizes the full table snapshot for one DSN handle.
const tableListCacheKey = "dataset:tables"

// ProfilerProgressCallback reports per-table profiling progress.
type ProfilerProgressCallback func(current, total int, tableName string)

// DatasetProfiler computes per-column statistics for the whole dataset.
type DatasetProfiler interface {
	// ProfileDataset returns an immutable snapshot of all tables with
	// column statistics filled in. Columns with zero non-null values
	// yield zeroed stats, not errors. The progressCallback can be nil.
	ProfileDataset(ctx context.Context, progressCallback ProfilerProgressCallback) ([]models.Table, error)
}

type datasetProfiler struct {
	source      datasource.DataSource
	schemaCache *cache.Cache[[]models.Table]
	logger      *zap.Logger
}

// NewDatasetProfiler creates a DatasetProfiler over the given source.
// The schema cache memoizes the profiled snapshot; pass the same instance
// across runs to avoid re-profiling an unchanged dataset.
func NewDatasetProfiler(source datasource.DataSource, schemaCache *cache.Cache[[]models.Table], logger *zap.Logger) DatasetProfiler {
	return &datasetProfiler{
		source:      source,
		schemaCache: schemaCache,
		logger:      logger.Named("dataset-profiler"),
	}
}

func (p *datasetProfiler) ProfileDataset(ctx context.Context, progressCallback ProfilerProgressCallback) ([]models.Table, error) {
	if cached, ok := p.schemaCache.Get(tableListCacheKey); ok {
		p.logger.Debug("Using cached dataset profile", zap.Int("tables", len(cached)))
		return cached, nil
	}

	tables, err := p.source.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	for i := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progressCallback != nil {
			progressCallback(i+1, len(tables), tables[i].Name)
		}
		if err := p.profileTable(ctx, &tables[i]); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Dataset profiling complete", zap.Int("tables", len(tables)))
	p.schemaCache.Set(tableListCacheKey, tables)
	return tables, nil
}

// profileTable fills statistics for every column of one table. A failed
// profile query records the error on the column rather than aborting the
// run; candidates over that column surface it as an analysis failure.
func (p *datasetProfiler) profileTable(ctx context.Context, table *models.Table) error {
	for i := range table.Columns {
		col := &table.Columns[i]
		profile, err := p.source.ProfileColumn(ctx, table.Name, col.Name)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			col.ProfileError = err.Error()
			p.logger.Warn("Failed to profile column",
				zap.String("table", table.Name),
				zap.String("column", col.Name),
				zap.Error(err))
			continue
		}
		col.NonNullCount = profile.NonNullCount
		col.DistinctCount = profile.DistinctCount
		col.MaxElementsPerRecord = profile.MaxElementsPerRecord
		col.AvgElementsPerRecord = profile.AvgElementsPerRecord
		if profile.RowCount > table.RowCount {
			table.RowCount = profile.RowCount
		}
	}
	return nil
}
