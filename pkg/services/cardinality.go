package services

import (
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// CardinalityClassifier decides the relationship type for a candidate from
// measured link counts, falling back to field shape when counts are
// unavailable.
type CardinalityClassifier interface {
	Classify(candidate *models.CandidateRelationship, column *models.Column) *models.CardinalityResult
}

type cardinalityClassifier struct {
	logger *zap.Logger
}

func NewCardinalityClassifier(logger *zap.Logger) CardinalityClassifier {
	return &cardinalityClassifier{logger: logger.Named("cardinality-classifier")}
}

func (c *cardinalityClassifier) Classify(candidate *models.CandidateRelationship, column *models.Column) *models.CardinalityResult {
	maxLinksFrom := int64(1)
	if column != nil && column.Shape == models.ColumnShapeArray {
		maxLinksFrom = column.MaxElementsPerRecord
		if maxLinksFrom < 1 {
			maxLinksFrom = 1
		}
	}

	var maxLinksTo int64
	if candidate.Integrity != nil {
		maxLinksTo = candidate.Integrity.MaxRefsPerTarget
	}

	// Without a measured per-target count the matrix cannot run; fall
	// back to the field shape.
	if maxLinksTo == 0 {
		result := &models.CardinalityResult{
			Measured:     false,
			MaxLinksFrom: maxLinksFrom,
		}
		if column != nil && column.Shape == models.ColumnShapeArray {
			result.Type = models.RelationshipOneToMany
		} else {
			result.Type = models.RelationshipManyToOne
		}
		c.logger.Debug("cardinality fell back to field shape",
			zap.String("source_table", candidate.SourceTable),
			zap.String("source_column", candidate.SourceColumn),
			zap.String("type", string(result.Type)))
		return result
	}

	result := &models.CardinalityResult{
		Measured:     true,
		MaxLinksFrom: maxLinksFrom,
		MaxLinksTo:   maxLinksTo,
	}
	switch {
	case maxLinksFrom <= 1 && maxLinksTo <= 1:
		result.Type = models.RelationshipOneToOne
	case maxLinksFrom <= 1:
		result.Type = models.RelationshipManyToOne
	case maxLinksTo <= 1:
		result.Type = models.RelationshipOneToMany
	default:
		result.Type = models.RelationshipManyToMany
	}
	return result
}
