package services

import (
	"sort"

	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// ProposalDeduplicator collapses duplicate proposals for the same
// (sourceTable, sourceField, targetTable) triple and orders the result.
type ProposalDeduplicator interface {
	// Deduplicate keeps the highest-confidence proposal per triple,
	// stable-sorts accepted proposals by descending confidence, and
	// appends rejected proposals after them in their original order.
	Deduplicate(proposals []models.RelationshipProposal) []models.RelationshipProposal
}

type proposalDeduplicator struct {
	logger *zap.Logger
}

func NewProposalDeduplicator(logger *zap.Logger) ProposalDeduplicator {
	return &proposalDeduplicator{logger: logger.Named("proposal-deduplicator")}
}

func (d *proposalDeduplicator) Deduplicate(proposals []models.RelationshipProposal) []models.RelationshipProposal {
	bestByKey := make(map[string]int, len(proposals))
	var accepted []models.RelationshipProposal
	var rejected []models.RelationshipProposal

	for _, proposal := range proposals {
		if !proposal.HasRelationship {
			rejected = append(rejected, proposal)
			continue
		}
		key := proposal.SourceTable + "\x00" + proposal.SourceField + "\x00" + proposal.TargetTable
		existing, seen := bestByKey[key]
		if !seen {
			bestByKey[key] = len(accepted)
			accepted = append(accepted, proposal)
			continue
		}
		if proposal.Confidence > accepted[existing].Confidence {
			d.logger.Debug("replacing duplicate proposal with higher-confidence variant",
				zap.String("source_table", proposal.SourceTable),
				zap.String("source_field", proposal.SourceField),
				zap.String("target_table", proposal.TargetTable),
				zap.Float64("kept_confidence", proposal.Confidence),
				zap.Float64("dropped_confidence", accepted[existing].Confidence))
			accepted[existing] = proposal
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Confidence > accepted[j].Confidence
	})

	return append(accepted, rejected...)
}
