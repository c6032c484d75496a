package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// ReferentialIntegrityAnalyzer measures how many distinct values in a
// source column resolve to key values in a target table.
type ReferentialIntegrityAnalyzer interface {
	// Analyze computes overlap between a source column and a target
	// table's key column. Returns (nil, nil) when the sample is too
	// small to support a verdict.
	Analyze(ctx context.Context, candidate *models.CandidateRelationship, targetKeyColumn string) (*models.IntegrityResult, error)
}

type referentialIntegrityAnalyzer struct {
	source datasource.DataSource
	config AnalysisConfig
	logger *zap.Logger
}

func NewReferentialIntegrityAnalyzer(source datasource.DataSource, config AnalysisConfig, logger *zap.Logger) ReferentialIntegrityAnalyzer {
	return &referentialIntegrityAnalyzer{
		source: source,
		config: config.normalize(),
		logger: logger.Named("integrity-analyzer"),
	}
}

func (a *referentialIntegrityAnalyzer) Analyze(ctx context.Context, candidate *models.CandidateRelationship, targetKeyColumn string) (*models.IntegrityResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overlap, err := a.source.ComputeOverlap(ctx, candidate.SourceTable, candidate.SourceColumn, candidate.TargetTable, targetKeyColumn)
	if err != nil {
		return nil, fmt.Errorf("compute overlap for %s.%s -> %s: %w",
			candidate.SourceTable, candidate.SourceColumn, candidate.TargetTable, err)
	}

	// Minimum sample guard: below these floors the overlap ratio is
	// noise, not evidence.
	if overlap.DistinctSourceValues < a.config.MinDistinctSourceValues || overlap.Matched < a.config.MinMatchedValues {
		a.logger.Debug("insufficient sample for integrity verdict",
			zap.String("source_table", candidate.SourceTable),
			zap.String("source_column", candidate.SourceColumn),
			zap.String("target_table", candidate.TargetTable),
			zap.Int64("distinct_source_values", overlap.DistinctSourceValues),
			zap.Int64("matched", overlap.Matched))
		return nil, nil
	}

	result := &models.IntegrityResult{
		DistinctSourceValues: overlap.DistinctSourceValues,
		Matched:              overlap.Matched,
		IntegrityPct:         float64(overlap.Matched) / float64(overlap.DistinctSourceValues) * 100.0,
		MaxRefsPerTarget:     overlap.MaxRefsPerTarget,
	}

	a.logger.Debug("integrity measured",
		zap.String("source_table", candidate.SourceTable),
		zap.String("source_column", candidate.SourceColumn),
		zap.String("target_table", candidate.TargetTable),
		zap.Float64("integrity_pct", result.IntegrityPct))

	return result, nil
}
