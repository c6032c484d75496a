package models

// ============================================================================
// Origin Evidence
// ============================================================================

// OriginEvidence records which discovery stage produced a candidate.
type OriginEvidence string

const (
	OriginSchema OriginEvidence = "schema"
	OriginNaming OriginEvidence = "naming"
	OriginBoth   OriginEvidence = "both"
)

// ValidOriginEvidence contains all valid origin evidence values.
var ValidOriginEvidence = []OriginEvidence{
	OriginSchema,
	OriginNaming,
	OriginBoth,
}

// IsValidOriginEvidence checks if the given origin is valid.
func IsValidOriginEvidence(o OriginEvidence) bool {
	for _, v := range ValidOriginEvidence {
		if v == o {
			return true
		}
	}
	return false
}

// ============================================================================
// Candidate Relationship
// ============================================================================

// CandidateRelationship is one (source column → target table) pair under
// test. It is created during discovery and enriched by the analysis stages;
// after scoring it is never mutated.
type CandidateRelationship struct {
	SourceTable  string         `json:"source_table"`
	SourceColumn string         `json:"source_column"`
	TargetTable  string         `json:"target_table,omitempty"` // empty until resolved
	FieldShape   ColumnShape    `json:"field_shape"`
	Origin       OriginEvidence `json:"origin_evidence"`

	// NamingSimilarity is the [0,1] score from the naming matcher,
	// when the candidate has naming evidence.
	NamingSimilarity float64 `json:"naming_similarity,omitempty"`

	// Schema is the declared-link evidence for this candidate, when the
	// source system supplied link metadata.
	Schema *SchemaEvidence `json:"schema_evidence,omitempty"`

	// Integrity holds the referential integrity measurement, populated by
	// the integrity analyzer.
	Integrity *IntegrityResult `json:"integrity,omitempty"`

	// Cardinality classification outcome, populated after integrity
	// analysis succeeds.
	Cardinality *CardinalityResult `json:"cardinality,omitempty"`

	// HasRelationship is false for candidates that failed the minimum
	// sample guard or found no matching target. They are excluded from
	// scoring but retained in the raw candidate trail.
	HasRelationship bool   `json:"has_relationship"`
	Reason          string `json:"reason,omitempty"`

	// ErrorMessage records a recovered per-candidate analysis failure.
	ErrorMessage string `json:"error_message,omitempty"`
}

// SchemaEvidence is the contribution of a declared link descriptor.
type SchemaEvidence struct {
	Score           float64 `json:"score"`
	IsSymmetric     bool    `json:"is_symmetric"`
	HasInverseField bool    `json:"has_inverse_field"`
	IsRequired      bool    `json:"is_required"`
}

// IntegrityResult is the outcome of the referential integrity check for
// one candidate.
type IntegrityResult struct {
	DistinctSourceValues int64   `json:"distinct_source_values"`
	Matched              int64   `json:"matched"`
	IntegrityPct         float64 `json:"integrity_pct"`

	// MaxRefsPerTarget is the largest number of distinct source records
	// pointing at a single target key value. Zero means the data source
	// could not measure it.
	MaxRefsPerTarget int64 `json:"max_refs_per_target,omitempty"`
}

// CardinalityResult is the outcome of cardinality classification.
type CardinalityResult struct {
	Type RelationshipType `json:"type"`
	// Measured is true when the classification came from measured link
	// counts on both sides, false when it fell back to field shape.
	Measured     bool  `json:"measured"`
	MaxLinksFrom int64 `json:"max_links_from"`
	MaxLinksTo   int64 `json:"max_links_to"`
}

// Key returns the deduplication key (sourceTable, sourceColumn, targetTable).
func (c *CandidateRelationship) Key() string {
	return c.SourceTable + "\x00" + c.SourceColumn + "\x00" + c.TargetTable
}
