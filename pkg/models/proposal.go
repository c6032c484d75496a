package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Relationship Type
// ============================================================================

// RelationshipType classifies the cardinality of a proposed relationship.
type RelationshipType string

const (
	RelationshipOneToOne   RelationshipType = "one-to-one"
	RelationshipOneToMany  RelationshipType = "one-to-many"
	RelationshipManyToOne  RelationshipType = "many-to-one"
	RelationshipManyToMany RelationshipType = "many-to-many"
)

// ValidRelationshipTypes contains all valid relationship type values.
var ValidRelationshipTypes = []RelationshipType{
	RelationshipOneToOne,
	RelationshipOneToMany,
	RelationshipManyToOne,
	RelationshipManyToMany,
}

// IsValidRelationshipType checks if the given type is valid.
func IsValidRelationshipType(t RelationshipType) bool {
	for _, v := range ValidRelationshipTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Confidence Buckets
// ============================================================================

// ConfidenceBucket groups proposals by review priority.
type ConfidenceBucket string

const (
	BucketHigh   ConfidenceBucket = "high"   // >= 0.8
	BucketMedium ConfidenceBucket = "medium" // 0.6 - 0.79
	BucketLow    ConfidenceBucket = "low"    // < 0.6
)

// BucketForConfidence returns the bucket a confidence value falls into.
func BucketForConfidence(confidence float64) ConfidenceBucket {
	switch {
	case confidence >= 0.8:
		return BucketHigh
	case confidence >= 0.6:
		return BucketMedium
	default:
		return BucketLow
	}
}

// ============================================================================
// Confidence Factors
// ============================================================================

// ConfidenceFactors holds the named contributions that sum (capped) into
// the final confidence value. Kept on the proposal metadata so reviewers
// can see where a score came from.
type ConfidenceFactors struct {
	SchemaEvidence       float64 `json:"schema_evidence"`
	ReferentialIntegrity float64 `json:"referential_integrity"`
	NamingSimilarity     float64 `json:"naming_similarity"`
	DataVolume           float64 `json:"data_volume"`
	CardinalityClarity   float64 `json:"cardinality_clarity"`
}

// ============================================================================
// Relationship Proposal
// ============================================================================

// ProposalMetadata carries the counts used during scoring for transparency.
type ProposalMetadata struct {
	RowCount             int64             `json:"row_count"`
	NonNullCount         int64             `json:"non_null_count"`
	DistinctSourceValues int64             `json:"distinct_source_values"`
	Matched              int64             `json:"matched"`
	IntegrityPct         float64           `json:"integrity_pct"`
	Factors              ConfidenceFactors `json:"factors"`
}

// RelationshipProposal is one reviewed entry of the final report.
//
// Proposals with HasRelationship=false carry no relationship type and are
// excluded from ranking, but stay in the report so no candidate silently
// disappears.
type RelationshipProposal struct {
	ID          uuid.UUID `json:"id"`
	SourceTable string    `json:"source_table"`
	SourceField string    `json:"source_field"`
	TargetTable string    `json:"target_table,omitempty"`
	// TargetField defaults to the target table's identifier column.
	TargetField string `json:"target_field,omitempty"`

	HasRelationship  bool             `json:"has_relationship"`
	Reason           string           `json:"reason,omitempty"`
	RelationshipType RelationshipType `json:"relationship_type,omitempty"`

	Confidence     float64  `json:"confidence"`
	Evidence       []string `json:"evidence"`
	ProposedAction string   `json:"proposed_action,omitempty"`
	SQLPreview     string   `json:"sql_preview,omitempty"`
	ReviewRequired bool     `json:"review_required"`
	ErrorMessage   string   `json:"error_message,omitempty"`

	Metadata ProposalMetadata `json:"metadata"`
}

// ============================================================================
// Relationship Proposal Report
// ============================================================================

// ReportSummary aggregates the outcome of one analysis run.
type ReportSummary struct {
	TotalCandidates    int                      `json:"total_candidates"`
	Accepted           int                      `json:"accepted"`
	Errors             int                      `json:"errors"`
	ByType             map[RelationshipType]int `json:"by_type"`
	ByConfidenceBucket map[ConfidenceBucket]int `json:"by_confidence_bucket"`
}

// RelationshipProposalReport is the JSON-serializable output of one
// analysis run.
type RelationshipProposalReport struct {
	AnalysisID    uuid.UUID              `json:"analysis_id"`
	CreatedAt     time.Time              `json:"created_at"`
	Summary       ReportSummary          `json:"summary"`
	Relationships []RelationshipProposal `json:"relationships"`
}
