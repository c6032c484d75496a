package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// ScoringInput bundles everything a collector may inspect for one candidate.
type ScoringInput struct {
	Candidate *models.CandidateRelationship
	Table     *models.Table
	Column    *models.Column
}

// EvidenceCollector evaluates one dimension of evidence for a candidate
// and returns its confidence contribution plus a human-readable note.
// ok is false when the dimension does not apply to this candidate.
type EvidenceCollector interface {
	Name() string
	Evaluate(input ScoringInput) (contribution float64, note string, ok bool)
}

// ScoringOutcome is the scorer's verdict for a single candidate.
type ScoringOutcome struct {
	Confidence float64
	Evidence   []string
	Factors    models.ConfidenceFactors
}

// ConfidenceScorer combines collector contributions into one bounded
// confidence value. A single weighted-sum strategy replaces the need for
// per-heuristic scoring variants.
type ConfidenceScorer interface {
	Score(input ScoringInput) ScoringOutcome
}

type confidenceScorer struct {
	collectors []EvidenceCollector
	config     AnalysisConfig
	logger     *zap.Logger
}

// NewConfidenceScorer creates a scorer with the standard collector set.
func NewConfidenceScorer(config AnalysisConfig, logger *zap.Logger) ConfidenceScorer {
	config = config.normalize()
	return &confidenceScorer{
		collectors: []EvidenceCollector{
			&integrityBaseCollector{weights: config.Weights},
			&cardinalityCollector{weights: config.Weights},
			&patternCollector{weights: config.Weights},
			&shapeMatchCollector{weights: config.Weights},
			&dataVolumeCollector{config: config},
			&namingCollector{weights: config.Weights},
		},
		config: config,
		logger: logger.Named("confidence-scorer"),
	}
}

func (s *confidenceScorer) Score(input ScoringInput) ScoringOutcome {
	w := s.config.Weights
	outcome := ScoringOutcome{Evidence: make([]string, 0, len(s.collectors)+2)}

	var dataConfidence float64
	var dataFactors models.ConfidenceFactors
	for _, collector := range s.collectors {
		contribution, note, ok := collector.Evaluate(input)
		if !ok {
			continue
		}
		dataConfidence += contribution
		if note != "" {
			outcome.Evidence = append(outcome.Evidence, note)
		}
		switch collector.Name() {
		case "referential_integrity":
			dataFactors.ReferentialIntegrity += contribution
		case "cardinality", "pattern", "shape_match":
			dataFactors.CardinalityClarity += contribution
		case "data_volume":
			dataFactors.DataVolume += contribution
		case "naming":
			dataFactors.NamingSimilarity += contribution
		}
	}

	schema := input.Candidate.Schema
	if schema == nil {
		outcome.Confidence = clamp(dataConfidence, w.MinConfidence, w.MaxConfidence)
		outcome.Factors = dataFactors
		return outcome
	}

	// Blend declared-link confidence with measured confidence. Data
	// evidence keeps the larger share since it reflects actual values.
	blended := w.SchemaBlend*schema.Score + w.DataBlend*dataConfidence
	outcome.Evidence = append(outcome.Evidence,
		fmt.Sprintf("declared link metadata (schema score %.2f)", schema.Score))

	outcome.Factors = models.ConfidenceFactors{
		SchemaEvidence:       w.SchemaBlend * schema.Score,
		ReferentialIntegrity: w.DataBlend * dataFactors.ReferentialIntegrity,
		NamingSimilarity:     w.DataBlend * dataFactors.NamingSimilarity,
		DataVolume:           w.DataBlend * dataFactors.DataVolume,
		CardinalityClarity:   w.DataBlend * dataFactors.CardinalityClarity,
	}

	if schemaAgreesWithData(schema, input.Candidate.Cardinality) {
		blended += w.AgreementBonus
		outcome.Factors.SchemaEvidence += w.AgreementBonus
		outcome.Evidence = append(outcome.Evidence,
			"schema metadata and measured data agree on relationship type")
	}

	outcome.Confidence = clamp(blended, w.MinConfidence, w.MaxConfidence)
	return outcome
}

// schemaAgreesWithData reports whether declared metadata and measured
// cardinality land in the same type family ("many" vs "one" per side).
// A symmetric declared link implies a many-valued target side.
func schemaAgreesWithData(schema *models.SchemaEvidence, cardinality *models.CardinalityResult) bool {
	if cardinality == nil {
		return false
	}
	declaredManyTarget := schema.IsSymmetric
	measuredManyTarget := cardinality.Type == models.RelationshipOneToMany ||
		cardinality.Type == models.RelationshipManyToMany
	return declaredManyTarget == measuredManyTarget
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ============================================================================
// Collectors
// ============================================================================

type integrityBaseCollector struct {
	weights ScoringWeights
}

func (c *integrityBaseCollector) Name() string { return "referential_integrity" }

func (c *integrityBaseCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	integrity := input.Candidate.Integrity
	if integrity == nil {
		return 0, "", false
	}
	note := fmt.Sprintf("referential integrity %.1f%% (%d of %d distinct values matched)",
		integrity.IntegrityPct, integrity.Matched, integrity.DistinctSourceValues)
	return c.weights.BaseIntegrity, note, true
}

type cardinalityCollector struct {
	weights ScoringWeights
}

func (c *cardinalityCollector) Name() string { return "cardinality" }

func (c *cardinalityCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	cardinality := input.Candidate.Cardinality
	if cardinality == nil {
		return 0, "", false
	}
	if cardinality.Measured {
		note := fmt.Sprintf("cardinality %s measured from link counts (max %d per source, %d per target)",
			cardinality.Type, cardinality.MaxLinksFrom, cardinality.MaxLinksTo)
		return c.weights.CardinalityMeasured, note, true
	}
	note := fmt.Sprintf("cardinality %s inferred from field shape only", cardinality.Type)
	return c.weights.CardinalityFallback, note, true
}

type patternCollector struct {
	weights ScoringWeights
}

func (c *patternCollector) Name() string { return "pattern" }

func (c *patternCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	cardinality := input.Candidate.Cardinality
	if cardinality == nil {
		return 0, "", false
	}
	switch cardinality.Type {
	case models.RelationshipOneToOne:
		return c.weights.PatternOneToOne, "exact one-to-one pattern", true
	case models.RelationshipOneToMany, models.RelationshipManyToOne:
		return c.weights.PatternClear, fmt.Sprintf("clear %s pattern", cardinality.Type), true
	case models.RelationshipManyToMany:
		return c.weights.PatternManyToMany, "many-to-many pattern", true
	}
	return 0, "", false
}

type shapeMatchCollector struct {
	weights ScoringWeights
}

func (c *shapeMatchCollector) Name() string { return "shape_match" }

func (c *shapeMatchCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	cardinality := input.Candidate.Cardinality
	if cardinality == nil || input.Column == nil {
		return 0, "", false
	}
	isArray := input.Column.Shape == models.ColumnShapeArray
	manySide := cardinality.Type == models.RelationshipOneToMany ||
		cardinality.Type == models.RelationshipManyToMany
	if isArray == manySide {
		return c.weights.ShapeMatch,
			fmt.Sprintf("column shape %s matches %s cardinality", input.Column.Shape, cardinality.Type), true
	}
	return c.weights.ShapeMismatch,
		fmt.Sprintf("column shape %s does not match %s cardinality", input.Column.Shape, cardinality.Type), true
}

type dataVolumeCollector struct {
	config AnalysisConfig
}

func (c *dataVolumeCollector) Name() string { return "data_volume" }

func (c *dataVolumeCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	integrity := input.Candidate.Integrity
	if integrity == nil || integrity.Matched == 0 {
		return 0, "", false
	}
	if input.Table == nil || input.Column == nil {
		return 0, "", false
	}
	if input.Table.RowCount < c.config.MinRowsForVolumeBonus ||
		input.Column.NonNullCount < c.config.MinNonNullForVolumeBonus {
		return 0, "", false
	}
	note := fmt.Sprintf("large sample (%d rows, %d non-null values)",
		input.Table.RowCount, input.Column.NonNullCount)
	return c.config.Weights.VolumeBonus, note, true
}

type namingCollector struct {
	weights ScoringWeights
}

func (c *namingCollector) Name() string { return "naming" }

func (c *namingCollector) Evaluate(input ScoringInput) (float64, string, bool) {
	similarity := input.Candidate.NamingSimilarity
	if similarity <= 0 {
		return 0, "", false
	}
	note := fmt.Sprintf("column name resembles target table (similarity %.2f)", similarity)
	return c.weights.NamingWeight * similarity, note, true
}
