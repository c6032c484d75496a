package services

// AnalysisConfig holds every tunable threshold of the inference pipeline.
// The cutoffs are heuristics, not law: callers with unusual datasets are
// expected to adjust them.
type AnalysisConfig struct {
	// Concurrency bounds the number of candidate checks in flight.
	Concurrency int

	// NamingSimilarityThreshold is the minimum normalized edit-distance
	// similarity for a fuzzy column-to-table name match.
	NamingSimilarityThreshold float64

	// Minimum-sample guard for referential integrity. Candidates below
	// either bound are not promoted to relationships.
	MinDistinctSourceValues int64
	MinMatchedValues        int64

	// Absolute-volume thresholds for the data volume bonus.
	MinRowsForVolumeBonus    int64
	MinNonNullForVolumeBonus int64

	// ReviewThreshold is the confidence below which a proposal is flagged
	// for manual review.
	ReviewThreshold float64

	Weights ScoringWeights
}

// ScoringWeights are the contribution sizes of the confidence scorer.
type ScoringWeights struct {
	// Data-side contributions.
	BaseIntegrity       float64 // completing integrity analysis without error
	CardinalityMeasured float64 // classification from measured link counts
	CardinalityFallback float64 // classification from field shape only
	PatternOneToOne     float64
	PatternClear        float64 // clear one-to-many / many-to-one
	PatternManyToMany   float64
	ShapeMatch          float64 // physical shape consistent with cardinality
	ShapeMismatch       float64
	VolumeBonus         float64
	NamingWeight        float64 // scaled by the naming similarity score

	// Schema-evidence contributions.
	SchemaBaseline       float64 // any declared link
	SchemaSymmetricBonus float64
	SchemaInverseBonus   float64
	SchemaCap            float64 // cap for schema-only evidence

	// Blend of schema and data confidence when both exist.
	SchemaBlend    float64
	DataBlend      float64
	AgreementBonus float64 // both sources agree on type family

	// Final clamp.
	MinConfidence float64
	MaxConfidence float64
}

// DefaultAnalysisConfig returns the default pipeline configuration.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Concurrency:               4,
		NamingSimilarityThreshold: 0.8,
		MinDistinctSourceValues:   5,
		MinMatchedValues:          3,
		MinRowsForVolumeBonus:     100,
		MinNonNullForVolumeBonus:  50,
		ReviewThreshold:           0.8,
		Weights: ScoringWeights{
			BaseIntegrity:       0.30,
			CardinalityMeasured: 0.40,
			CardinalityFallback: 0.15,
			PatternOneToOne:     0.10,
			PatternClear:        0.08,
			PatternManyToMany:   0.05,
			ShapeMatch:          0.20,
			ShapeMismatch:       0.10,
			VolumeBonus:         0.10,
			NamingWeight:        0.05,

			SchemaBaseline:       0.65,
			SchemaSymmetricBonus: 0.10,
			SchemaInverseBonus:   0.10,
			SchemaCap:            0.80,

			SchemaBlend:    0.3,
			DataBlend:      0.7,
			AgreementBonus: 0.10,

			MinConfidence: 0.1,
			MaxConfidence: 0.99,
		},
	}
}

// normalize fills zero values with defaults so a partially-populated
// config stays usable.
func (c AnalysisConfig) normalize() AnalysisConfig {
	def := DefaultAnalysisConfig()
	if c.Concurrency < 1 {
		c.Concurrency = def.Concurrency
	}
	if c.NamingSimilarityThreshold <= 0 {
		c.NamingSimilarityThreshold = def.NamingSimilarityThreshold
	}
	if c.MinDistinctSourceValues <= 0 {
		c.MinDistinctSourceValues = def.MinDistinctSourceValues
	}
	if c.MinMatchedValues <= 0 {
		c.MinMatchedValues = def.MinMatchedValues
	}
	if c.MinRowsForVolumeBonus <= 0 {
		c.MinRowsForVolumeBonus = def.MinRowsForVolumeBonus
	}
	if c.MinNonNullForVolumeBonus <= 0 {
		c.MinNonNullForVolumeBonus = def.MinNonNullForVolumeBonus
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = def.ReviewThreshold
	}
	if c.Weights == (ScoringWeights{}) {
		c.Weights = def.Weights
	}
	return c
}
