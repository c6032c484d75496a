package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/metadata"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

var evidenceTables = []models.Table{
	{Name: "orders", KeyColumn: "id"},
	{Name: "customers", KeyColumn: "id"},
	{Name: "tags", KeyColumn: "id"},
}

func TestSchemaEvidence_NilSourceYieldsEmpty(t *testing.T) {
	collector := NewSchemaEvidenceCollector(nil, DefaultAnalysisConfig(), zap.NewNop())

	result, err := collector.CollectSchemaEvidence(context.Background(), evidenceTables)
	require.NoError(t, err)
	assert.Empty(t, result.Links)
	assert.Empty(t, result.ResolutionErrors)
}

func TestSchemaEvidence_Scoring(t *testing.T) {
	tests := []struct {
		name      string
		link      models.LinkDescriptor
		wantScore float64
	}{
		{
			name: "baseline",
			link: models.LinkDescriptor{
				SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "customers",
			},
			wantScore: 0.65,
		},
		{
			name: "symmetric bonus",
			link: models.LinkDescriptor{
				SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "customers",
				IsSymmetric: true,
			},
			wantScore: 0.75,
		},
		{
			name: "inverse bonus",
			link: models.LinkDescriptor{
				SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "customers",
				HasInverseField: true,
			},
			wantScore: 0.75,
		},
		{
			name: "both bonuses capped at 0.80",
			link: models.LinkDescriptor{
				SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "customers",
				IsSymmetric: true, HasInverseField: true,
			},
			wantScore: 0.80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := metadata.NewStaticSource([]models.LinkDescriptor{tt.link}, nil)
			collector := NewSchemaEvidenceCollector(source, DefaultAnalysisConfig(), zap.NewNop())

			result, err := collector.CollectSchemaEvidence(context.Background(), evidenceTables)
			require.NoError(t, err)
			require.Len(t, result.Links, 1)

			link := result.Links["orders\x00customer_ref"]
			require.NotNil(t, link)
			assert.InDelta(t, tt.wantScore, link.Score, 1e-9)
			assert.Equal(t, "customers", link.TargetTable)
		})
	}
}

func TestSchemaEvidence_AliasResolution(t *testing.T) {
	source := metadata.NewStaticSource(
		[]models.LinkDescriptor{
			{SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "tblCUST001"},
		},
		map[string]string{"tblCUST001": "customers"},
	)
	collector := NewSchemaEvidenceCollector(source, DefaultAnalysisConfig(), zap.NewNop())

	result, err := collector.CollectSchemaEvidence(context.Background(), evidenceTables)
	require.NoError(t, err)
	require.Len(t, result.Links, 1)
	assert.Equal(t, "customers", result.Links["orders\x00customer_ref"].TargetTable)
}

func TestSchemaEvidence_UnresolvableLinkIsRecoveredNotFatal(t *testing.T) {
	source := metadata.NewStaticSource(
		[]models.LinkDescriptor{
			{SourceTable: "orders", SourceField: "customer_ref", TargetTableID: "customers"},
			{SourceTable: "orders", SourceField: "region_ref", TargetTableID: "tblREGION999"},
		},
		nil,
	)
	collector := NewSchemaEvidenceCollector(source, DefaultAnalysisConfig(), zap.NewNop())

	result, err := collector.CollectSchemaEvidence(context.Background(), evidenceTables)
	require.NoError(t, err)
	assert.Len(t, result.Links, 1)
	require.Len(t, result.ResolutionErrors, 1)
	assert.Contains(t, result.ResolutionErrors[0], "tblREGION999")
}
