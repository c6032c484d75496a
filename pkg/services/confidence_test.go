package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

func scoredInput() ScoringInput {
	table := &models.Table{Name: "orders", RowCount: 100, KeyColumn: "id"}
	column := &models.Column{
		Name:                 "customer_ref",
		Shape:                models.ColumnShapeScalar,
		NonNullCount:         80,
		MaxElementsPerRecord: 1,
	}
	candidate := &models.CandidateRelationship{
		SourceTable:      "orders",
		SourceColumn:     "customer_ref",
		TargetTable:      "customers",
		NamingSimilarity: 0.9,
		Integrity: &models.IntegrityResult{
			DistinctSourceValues: 80,
			Matched:              76,
			IntegrityPct:         95.0,
			MaxRefsPerTarget:     3,
		},
		Cardinality: &models.CardinalityResult{
			Type:         models.RelationshipManyToOne,
			Measured:     true,
			MaxLinksFrom: 1,
			MaxLinksTo:   3,
		},
		HasRelationship: true,
	}
	return ScoringInput{Candidate: candidate, Table: table, Column: column}
}

func TestConfidenceScorer_StrongCandidateClampsHigh(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	outcome := scorer.Score(scoredInput())

	// 0.30 base + 0.40 measured + 0.08 clear pattern + 0.20 shape match
	// + 0.10 volume + 0.045 naming exceeds the cap.
	assert.Equal(t, 0.99, outcome.Confidence)
	assert.NotEmpty(t, outcome.Evidence)
	assert.Greater(t, outcome.Factors.ReferentialIntegrity, 0.0)
	assert.Greater(t, outcome.Factors.CardinalityClarity, 0.0)
	assert.Greater(t, outcome.Factors.DataVolume, 0.0)
}

func TestConfidenceScorer_BoundsAlwaysHold(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	// A candidate with almost no evidence still lands inside [0.1, 0.99].
	input := scoredInput()
	input.Candidate.Integrity = nil
	input.Candidate.Cardinality = nil
	input.Candidate.NamingSimilarity = 0

	outcome := scorer.Score(input)
	assert.GreaterOrEqual(t, outcome.Confidence, 0.1)
	assert.LessOrEqual(t, outcome.Confidence, 0.99)
}

func TestConfidenceScorer_FallbackCardinalityScoresLower(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	measured := scorer.Score(scoredInput())

	fallback := scoredInput()
	fallback.Candidate.Cardinality.Measured = false
	fallback.Candidate.NamingSimilarity = 0
	fallback.Table.RowCount = 10 // below the volume threshold
	fallbackOutcome := scorer.Score(fallback)

	assert.Less(t, fallbackOutcome.Confidence, measured.Confidence)
}

func TestConfidenceScorer_SchemaBlendAndAgreement(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	// Data-only outcome for the same candidate, without the volume bonus
	// so the sum stays below the clamp and the blend is observable.
	input := scoredInput()
	input.Table.RowCount = 10
	input.Candidate.NamingSimilarity = 0
	dataOnly := scorer.Score(input)
	// 0.30 + 0.40 + 0.08 + 0.20 = 0.98
	require.InDelta(t, 0.98, dataOnly.Confidence, 1e-9)

	withSchema := scoredInput()
	withSchema.Table.RowCount = 10
	withSchema.Candidate.NamingSimilarity = 0
	withSchema.Candidate.Schema = &models.SchemaEvidence{Score: 0.65}
	blended := scorer.Score(withSchema)

	// many-to-one measured with a non-symmetric declared link agrees on
	// the type family: 0.3*0.65 + 0.7*0.98 + 0.10 = 0.981.
	require.InDelta(t, 0.981, blended.Confidence, 1e-9)
	assert.Greater(t, blended.Factors.SchemaEvidence, 0.0)
}

func TestConfidenceScorer_SchemaDisagreementSkipsBonus(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	input := scoredInput()
	input.Table.RowCount = 10
	input.Candidate.NamingSimilarity = 0
	// Symmetric declared link claims a many-valued target side, but the
	// measured cardinality is many-to-one.
	input.Candidate.Schema = &models.SchemaEvidence{Score: 0.75, IsSymmetric: true}
	outcome := scorer.Score(input)

	// 0.3*0.75 + 0.7*0.98, no agreement bonus.
	require.InDelta(t, 0.911, outcome.Confidence, 1e-9)
}

func TestConfidenceScorer_Deterministic(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultAnalysisConfig(), zap.NewNop())

	first := scorer.Score(scoredInput())
	second := scorer.Score(scoredInput())

	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Evidence, second.Evidence)
	assert.Equal(t, first.Factors, second.Factors)
}
