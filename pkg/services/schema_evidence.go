package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/metadata"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// DeclaredLink is a link descriptor resolved against the imported table
// set, with its schema-evidence score computed.
type DeclaredLink struct {
	SourceTable     string
	SourceField     string
	TargetTable     string
	Score           float64
	IsSymmetric     bool
	HasInverseField bool
	IsRequired      bool
}

// SchemaEvidenceResult is the outcome of collecting declared link
// metadata. ResolutionErrors are recoverable: the affected links are
// dropped as schema evidence but other stages still consider the columns.
type SchemaEvidenceResult struct {
	// Links is keyed by sourceTable + "\x00" + sourceField.
	Links map[string]*DeclaredLink
	// ResolutionErrors are human-readable notes for links whose target
	// table ID could not be resolved.
	ResolutionErrors []string
}

// SchemaEvidenceCollector extracts declared link evidence from the source
// system's schema metadata. Optional: a nil metadata source yields an
// empty result.
type SchemaEvidenceCollector interface {
	CollectSchemaEvidence(ctx context.Context, tables []models.Table) (*SchemaEvidenceResult, error)
}

type schemaEvidenceCollector struct {
	metadataSource metadata.SchemaMetadataSource
	config         AnalysisConfig
	logger         *zap.Logger
}

// NewSchemaEvidenceCollector creates a SchemaEvidenceCollector.
// metadataSource may be nil when the export carried no link metadata.
func NewSchemaEvidenceCollector(metadataSource metadata.SchemaMetadataSource, config AnalysisConfig, logger *zap.Logger) SchemaEvidenceCollector {
	return &schemaEvidenceCollector{
		metadataSource: metadataSource,
		config:         config.normalize(),
		logger:         logger.Named("schema-evidence"),
	}
}

func (c *schemaEvidenceCollector) CollectSchemaEvidence(ctx context.Context, tables []models.Table) (*SchemaEvidenceResult, error) {
	result := &SchemaEvidenceResult{Links: make(map[string]*DeclaredLink)}
	if c.metadataSource == nil {
		return result, nil
	}

	links, err := c.metadataSource.ListDeclaredLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list declared links: %w", err)
	}
	if len(links) == 0 {
		return result, nil
	}

	aliases, err := c.metadataSource.ListTableAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list table aliases: %w", err)
	}

	byName := make(map[string]string, len(tables))
	for _, t := range tables {
		byName[strings.ToLower(t.Name)] = t.Name
	}

	for _, link := range links {
		targetTable, ok := c.resolveTargetTable(link.TargetTableID, byName, aliases)
		if !ok {
			note := fmt.Sprintf("declared link %s.%s references unknown table id %q",
				link.SourceTable, link.SourceField, link.TargetTableID)
			result.ResolutionErrors = append(result.ResolutionErrors, note)
			c.logger.Warn("Unresolvable declared link, dropping schema evidence",
				zap.String("source_table", link.SourceTable),
				zap.String("source_field", link.SourceField),
				zap.String("target_table_id", link.TargetTableID))
			continue
		}

		score := c.config.Weights.SchemaBaseline
		if link.IsSymmetric {
			score += c.config.Weights.SchemaSymmetricBonus
		}
		if link.HasInverseField {
			score += c.config.Weights.SchemaInverseBonus
		}
		if score > c.config.Weights.SchemaCap {
			score = c.config.Weights.SchemaCap
		}

		key := link.SourceTable + "\x00" + link.SourceField
		result.Links[key] = &DeclaredLink{
			SourceTable:     link.SourceTable,
			SourceField:     link.SourceField,
			TargetTable:     targetTable,
			Score:           score,
			IsSymmetric:     link.IsSymmetric,
			HasInverseField: link.HasInverseField,
			IsRequired:      link.IsRequired,
		}
	}

	c.logger.Info("Collected schema evidence",
		zap.Int("declared_links", len(links)),
		zap.Int("resolved", len(result.Links)),
		zap.Int("unresolved", len(result.ResolutionErrors)))
	return result, nil
}

// resolveTargetTable maps an opaque source-system table ID to an imported
// table name. The export's alias map wins; otherwise the ID itself is
// tried as a table name, since some exports use names as IDs.
func (c *schemaEvidenceCollector) resolveTargetTable(targetTableID string, byName map[string]string, aliases map[string]string) (string, bool) {
	if aliases != nil {
		if name, ok := aliases[targetTableID]; ok {
			if resolved, ok := byName[strings.ToLower(name)]; ok {
				return resolved, true
			}
			return "", false
		}
	}
	if resolved, ok := byName[strings.ToLower(targetTableID)]; ok {
		return resolved, true
	}
	return "", false
}
