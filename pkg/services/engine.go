package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/metadata"
	"github.com/schemalift-inc/schemalift-engine/pkg/apperrors"
	"github.com/schemalift-inc/schemalift-engine/pkg/cache"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
	"github.com/schemalift-inc/schemalift-engine/pkg/progress"
	"github.com/schemalift-inc/schemalift-engine/pkg/services/workerpool"
)

// Rejection reasons surfaced on hasRelationship=false entries.
const (
	ReasonNoNonNullValues      = "no non-null values"
	ReasonTargetTableNotFound  = "target table not found"
	ReasonInsufficientEvidence = "insufficient evidence for a verdict"
	ReasonAnalysisFailed       = "analysis failed"
)

// RelationshipInferenceEngine runs the full inference pipeline over one
// dataset and produces a Relationship Proposal Report.
type RelationshipInferenceEngine interface {
	// Analyze profiles the dataset, generates and tests candidates, and
	// returns the scored report. On cancellation the candidates already
	// analyzed are still scored and returned alongside
	// apperrors.ErrAnalysisCancelled.
	Analyze(ctx context.Context) (*models.RelationshipProposalReport, error)
}

type relationshipInferenceEngine struct {
	source   datasource.DataSource
	profiler DatasetProfiler
	schema   SchemaEvidenceCollector
	analyzer ReferentialIntegrityAnalyzer
	classer  CardinalityClassifier
	scorer   ConfidenceScorer
	deduper  ProposalDeduplicator
	ddl      DDLPreviewGenerator
	pool     *workerpool.Pool
	sink     progress.Sink
	config   AnalysisConfig
	logger   *zap.Logger
}

// NewRelationshipInferenceEngine wires the pipeline stages together.
// metadataSource may be nil; sink may be nil (a no-op sink is used).
func NewRelationshipInferenceEngine(
	source datasource.DataSource,
	metadataSource metadata.SchemaMetadataSource,
	schemaCache *cache.Cache[[]models.Table],
	sink progress.Sink,
	config AnalysisConfig,
	logger *zap.Logger,
) (RelationshipInferenceEngine, error) {
	if source == nil {
		return nil, fmt.Errorf("create inference engine: %w", apperrors.ErrNoDataSource)
	}
	if schemaCache == nil {
		schemaCache = cache.New[[]models.Table](16, 10*time.Minute)
	}
	if sink == nil {
		sink = progress.NewNoopSink()
	}
	config = config.normalize()

	log := logger.Named("inference-engine")
	return &relationshipInferenceEngine{
		source:   source,
		profiler: NewDatasetProfiler(source, schemaCache, logger),
		schema:   NewSchemaEvidenceCollector(metadataSource, config, logger),
		analyzer: NewReferentialIntegrityAnalyzer(source, config, logger),
		classer:  NewCardinalityClassifier(logger),
		scorer:   NewConfidenceScorer(config, logger),
		deduper:  NewProposalDeduplicator(logger),
		ddl:      NewDDLPreviewGenerator(source, logger),
		pool:     workerpool.New(workerpool.Config{MaxConcurrent: config.Concurrency}, logger),
		sink:     sink,
		config:   config,
		logger:   log,
	}, nil
}

func (e *relationshipInferenceEngine) Analyze(ctx context.Context) (*models.RelationshipProposalReport, error) {
	started := time.Now()

	// Stage 1: profile the dataset.
	e.publish(progress.StageProfiling, "", "profiling dataset", nil)
	tables, err := e.profiler.ProfileDataset(ctx, func(current, total int, tableName string) {
		pct := percent(current, total)
		e.publish(progress.StageProfiling, tableName,
			fmt.Sprintf("profiling table %d of %d", current, total), &pct)
	})
	if err != nil {
		return nil, fmt.Errorf("profile dataset: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("profile dataset: %w", apperrors.ErrNoTables)
	}

	// Stage 2: declared link metadata (optional).
	evidence, err := e.schema.CollectSchemaEvidence(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("collect schema evidence: %w", err)
	}

	// Stage 3: candidate generation.
	e.publish(progress.StageDiscovery, "", "generating candidates", nil)
	candidates := e.generateCandidates(tables, evidence)
	e.logger.Info("Candidate generation complete",
		zap.Int("tables", len(tables)),
		zap.Int("candidates", len(candidates)))

	// Stage 4: parallel integrity analysis and cardinality classification.
	tableIndex := indexTables(tables)
	analyzed, cancelled := e.analyzeCandidates(ctx, candidates, tableIndex)

	// Stage 5: scoring and report assembly. Runs even on cancellation so
	// the work already done is not thrown away.
	e.publish(progress.StageScoring, "", "scoring candidates", nil)
	report := e.buildReport(analyzed, tableIndex, len(evidence.ResolutionErrors))

	e.publish(progress.StageReport, "", "report complete", nil)
	e.logger.Info("Analysis complete",
		zap.Int("candidates", report.Summary.TotalCandidates),
		zap.Int("accepted", report.Summary.Accepted),
		zap.Int("errors", report.Summary.Errors),
		zap.Duration("elapsed", time.Since(started)))

	if cancelled {
		return report, fmt.Errorf("analysis interrupted: %w", apperrors.ErrAnalysisCancelled)
	}
	return report, nil
}

// generateCandidates walks every column of every table and nominates
// (source column, target table) pairs from declared links and naming
// patterns. Tables are visited in sorted order so candidate order, and
// with it report order, is deterministic.
func (e *relationshipInferenceEngine) generateCandidates(tables []models.Table, evidence *SchemaEvidenceResult) []*models.CandidateRelationship {
	sorted := make([]models.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tableNames := make([]string, len(sorted))
	for i, t := range sorted {
		tableNames[i] = t.Name
	}
	matcher := NewNamingPatternMatcher(tableNames, e.config, e.logger)

	var candidates []*models.CandidateRelationship
	for _, table := range sorted {
		for _, column := range table.Columns {
			if column.Name == table.KeyColumn {
				continue
			}

			linkKey := table.Name + "\x00" + column.Name
			declared := evidence.Links[linkKey]
			match, matched := matcher.MatchColumn(table.Name, column.Name)

			switch {
			case declared != nil && matched && declared.TargetTable == match.TargetTable:
				candidates = append(candidates, newCandidate(table, column, declared.TargetTable,
					models.OriginBoth, match.Similarity, declared))
			case declared != nil && matched:
				// Conflicting nominations are both tested; the scorer
				// and deduplicator sort out which one survives.
				candidates = append(candidates, newCandidate(table, column, declared.TargetTable,
					models.OriginSchema, 0, declared))
				candidates = append(candidates, newCandidate(table, column, match.TargetTable,
					models.OriginNaming, match.Similarity, nil))
			case declared != nil:
				candidates = append(candidates, newCandidate(table, column, declared.TargetTable,
					models.OriginSchema, 0, declared))
			case matched:
				candidates = append(candidates, newCandidate(table, column, match.TargetTable,
					models.OriginNaming, match.Similarity, nil))
			case isLinkLike(column):
				// Looks like a reference but no table claims it. Kept as
				// a rejected entry so the report explains the column.
				candidates = append(candidates, newCandidate(table, column, "",
					models.OriginNaming, 0, nil))
			}
		}
	}
	return candidates
}

// analyzeCandidates runs integrity analysis and cardinality classification
// for every candidate through the bounded worker pool. Returns the
// enriched candidates and whether the run was cancelled midway.
func (e *relationshipInferenceEngine) analyzeCandidates(ctx context.Context, candidates []*models.CandidateRelationship, tableIndex map[string]*models.Table) ([]*models.CandidateRelationship, bool) {
	items := make([]workerpool.Item[*models.CandidateRelationship], 0, len(candidates))
	for _, candidate := range candidates {
		candidate := candidate
		items = append(items, workerpool.Item[*models.CandidateRelationship]{
			ID: candidate.Key(),
			Execute: func(ctx context.Context) (*models.CandidateRelationship, error) {
				e.analyzeCandidate(ctx, candidate, tableIndex)
				return candidate, ctx.Err()
			},
		})
	}

	results := workerpool.Process(ctx, e.pool, items, func(completed, total int) {
		pct := percent(completed, total)
		e.publish(progress.StageAnalysis, "",
			fmt.Sprintf("analyzed candidate %d of %d", completed, total), &pct)
	})

	cancelled := false
	analyzed := make([]*models.CandidateRelationship, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			cancelled = true
			// A candidate whose analysis finished before the cancellation
			// landed still carries a verdict and stays in the trail; only
			// never-analyzed ones are dropped.
			if result.Value == nil || !reachedVerdict(result.Value) {
				continue
			}
		}
		analyzed = append(analyzed, result.Value)
	}

	// Stable output order regardless of completion order.
	sort.Slice(analyzed, func(i, j int) bool { return analyzed[i].Key() < analyzed[j].Key() })
	return analyzed, cancelled
}

// analyzeCandidate enriches one candidate in place. Failures are recorded
// on the candidate and never propagate.
func (e *relationshipInferenceEngine) analyzeCandidate(ctx context.Context, candidate *models.CandidateRelationship, tableIndex map[string]*models.Table) {
	sourceTable := tableIndex[candidate.SourceTable]
	column := sourceTable.FindColumn(candidate.SourceColumn)

	if column != nil && column.ProfileError != "" {
		// The profiler could not measure this column; its zeroed stats
		// must not masquerade as an empty column.
		candidate.HasRelationship = false
		candidate.Reason = ReasonAnalysisFailed
		candidate.ErrorMessage = column.ProfileError
		return
	}

	if column != nil && column.NonNullCount == 0 {
		candidate.HasRelationship = false
		candidate.Reason = ReasonNoNonNullValues
		return
	}

	target, targetKnown := tableIndex[candidate.TargetTable]
	if candidate.TargetTable == "" || !targetKnown {
		candidate.HasRelationship = false
		candidate.Reason = ReasonTargetTableNotFound
		return
	}

	integrity, err := e.analyzer.Analyze(ctx, candidate, target.KeyColumn)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		candidate.HasRelationship = false
		candidate.Reason = ReasonAnalysisFailed
		candidate.ErrorMessage = err.Error()
		e.logger.Warn("Candidate analysis failed",
			zap.String("source_table", candidate.SourceTable),
			zap.String("source_column", candidate.SourceColumn),
			zap.String("target_table", candidate.TargetTable),
			zap.Error(err))
		return
	}
	if integrity == nil {
		candidate.HasRelationship = false
		candidate.Reason = ReasonInsufficientEvidence
		return
	}

	candidate.Integrity = integrity
	candidate.Cardinality = e.classer.Classify(candidate, column)
	candidate.HasRelationship = true
}

// buildReport scores analyzed candidates, deduplicates, attaches DDL
// previews, and assembles the summary.
func (e *relationshipInferenceEngine) buildReport(candidates []*models.CandidateRelationship, tableIndex map[string]*models.Table, resolutionErrors int) *models.RelationshipProposalReport {
	proposals := make([]models.RelationshipProposal, 0, len(candidates))
	for _, candidate := range candidates {
		proposals = append(proposals, e.toProposal(candidate, tableIndex))
	}

	deduped := e.deduper.Deduplicate(proposals)

	summary := models.ReportSummary{
		TotalCandidates:    len(candidates),
		Errors:             resolutionErrors,
		ByType:             make(map[models.RelationshipType]int),
		ByConfidenceBucket: make(map[models.ConfidenceBucket]int),
	}
	for i := range deduped {
		proposal := &deduped[i]
		if proposal.ErrorMessage != "" {
			summary.Errors++
		}
		if !proposal.HasRelationship {
			continue
		}
		summary.Accepted++
		summary.ByType[proposal.RelationshipType]++
		summary.ByConfidenceBucket[models.BucketForConfidence(proposal.Confidence)]++

		sourceTable := tableIndex[proposal.SourceTable]
		column := sourceTable.FindColumn(proposal.SourceField)
		shape := models.ColumnShapeScalar
		if column != nil {
			shape = column.Shape
		}
		proposal.ProposedAction, proposal.SQLPreview = e.ddl.Generate(proposal, sourceTable.KeyColumn, shape)
	}

	return &models.RelationshipProposalReport{
		AnalysisID:    uuid.New(),
		CreatedAt:     time.Now().UTC(),
		Summary:       summary,
		Relationships: deduped,
	}
}

// toProposal scores one candidate and converts it to a report entry.
func (e *relationshipInferenceEngine) toProposal(candidate *models.CandidateRelationship, tableIndex map[string]*models.Table) models.RelationshipProposal {
	proposal := models.RelationshipProposal{
		ID:              uuid.New(),
		SourceTable:     candidate.SourceTable,
		SourceField:     candidate.SourceColumn,
		TargetTable:     candidate.TargetTable,
		HasRelationship: candidate.HasRelationship,
		Reason:          candidate.Reason,
		ErrorMessage:    candidate.ErrorMessage,
		Evidence:        []string{},
	}

	sourceTable := tableIndex[candidate.SourceTable]
	column := sourceTable.FindColumn(candidate.SourceColumn)
	if target, ok := tableIndex[candidate.TargetTable]; ok {
		proposal.TargetField = target.KeyColumn
	}
	proposal.Metadata.RowCount = sourceTable.RowCount
	if column != nil {
		proposal.Metadata.NonNullCount = column.NonNullCount
	}

	if !candidate.HasRelationship {
		return proposal
	}

	outcome := e.scorer.Score(ScoringInput{Candidate: candidate, Table: sourceTable, Column: column})
	proposal.RelationshipType = candidate.Cardinality.Type
	proposal.Confidence = outcome.Confidence
	proposal.Evidence = outcome.Evidence
	proposal.ReviewRequired = outcome.Confidence < e.config.ReviewThreshold
	proposal.Metadata.DistinctSourceValues = candidate.Integrity.DistinctSourceValues
	proposal.Metadata.Matched = candidate.Integrity.Matched
	proposal.Metadata.IntegrityPct = candidate.Integrity.IntegrityPct
	proposal.Metadata.Factors = outcome.Factors
	return proposal
}

func (e *relationshipInferenceEngine) publish(stage progress.Stage, tableName, message string, pct *float64) {
	e.sink.Publish(progress.Event{
		Stage:           stage,
		TableName:       tableName,
		Message:         message,
		PercentComplete: pct,
		Timestamp:       time.Now().UTC(),
	})
}

func newCandidate(table models.Table, column models.Column, targetTable string, origin models.OriginEvidence, similarity float64, declared *DeclaredLink) *models.CandidateRelationship {
	candidate := &models.CandidateRelationship{
		SourceTable:      table.Name,
		SourceColumn:     column.Name,
		TargetTable:      targetTable,
		FieldShape:       column.Shape,
		Origin:           origin,
		NamingSimilarity: similarity,
	}
	if declared != nil {
		candidate.Schema = &models.SchemaEvidence{
			Score:           declared.Score,
			IsSymmetric:     declared.IsSymmetric,
			HasInverseField: declared.HasInverseField,
			IsRequired:      declared.IsRequired,
		}
	}
	return candidate
}

// reachedVerdict reports whether analysis produced an outcome for the
// candidate, accepted or rejected.
func reachedVerdict(c *models.CandidateRelationship) bool {
	return c.HasRelationship || c.Reason != ""
}

// isLinkLike reports whether a column looks like a reference even when no
// table claims it: array shape or a foreign-key style name suffix.
func isLinkLike(column models.Column) bool {
	if column.Shape == models.ColumnShapeArray {
		return true
	}
	_, ok := stripReferenceSuffix(column.Name)
	return ok
}

func indexTables(tables []models.Table) map[string]*models.Table {
	index := make(map[string]*models.Table, len(tables))
	for i := range tables {
		index[tables[i].Name] = &tables[i]
	}
	return index
}

func percent(current, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(current) / float64(total) * 100.0
}
