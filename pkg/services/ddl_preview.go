package services

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// DDLPreviewGenerator renders the SQL a reviewer would apply to
// materialize an accepted proposal. The text is never executed here, but
// it is rendered in the active store's dialect so it could be.
type DDLPreviewGenerator interface {
	// Generate returns a one-line proposed action and the full SQL
	// preview for a proposal. sourceKeyColumn is the source table's own
	// identifier column, needed for junction backfills.
	Generate(proposal *models.RelationshipProposal, sourceKeyColumn string, shape models.ColumnShape) (action string, sqlPreview string)
}

type ddlPreviewGenerator struct {
	dialect datasource.SQLDialect
	logger  *zap.Logger
}

func NewDDLPreviewGenerator(dialect datasource.SQLDialect, logger *zap.Logger) DDLPreviewGenerator {
	return &ddlPreviewGenerator{dialect: dialect, logger: logger.Named("ddl-preview")}
}

func (g *ddlPreviewGenerator) Generate(proposal *models.RelationshipProposal, sourceKeyColumn string, shape models.ColumnShape) (string, string) {
	if proposal.RelationshipType == models.RelationshipManyToMany {
		return g.junctionPreview(proposal, sourceKeyColumn)
	}
	return g.foreignKeyPreview(proposal, shape)
}

// foreignKeyPreview covers one-to-one, many-to-one, and one-to-many: add a
// typed link column, backfill it from the raw column, constrain it, drop
// the raw column. The constraint statement is omitted on stores that
// cannot add one to an existing table.
func (g *ddlPreviewGenerator) foreignKeyPreview(proposal *models.RelationshipProposal, shape models.ColumnShape) (string, string) {
	source := g.dialect.QuoteIdentifier(proposal.SourceTable)
	rawColumn := g.dialect.QuoteIdentifier(proposal.SourceField)
	fkColumn := g.dialect.QuoteIdentifier(proposal.SourceField + "_fk")

	backfillValue := rawColumn
	if shape == models.ColumnShapeArray {
		// Array columns collapse to their first element on the FK path.
		backfillValue = g.dialect.ArrayFirstElement(proposal.SourceTable, proposal.SourceField)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s TEXT;\n", source, fkColumn)
	fmt.Fprintf(&b, "UPDATE %s SET %s = %s;\n", source, fkColumn, backfillValue)
	constraint := fmt.Sprintf("fk_%s_%s", proposal.SourceTable, proposal.SourceField)
	if stmt := g.dialect.AddForeignKeyStatement(proposal.SourceTable, constraint,
		proposal.SourceField+"_fk", proposal.TargetTable, proposal.TargetField); stmt != "" {
		b.WriteString(stmt + "\n")
	}
	fmt.Fprintf(&b, "ALTER TABLE %s DROP COLUMN %s;", source, rawColumn)

	action := fmt.Sprintf("Add foreign key %s.%s_fk referencing %s.%s (%s)",
		proposal.SourceTable, proposal.SourceField, proposal.TargetTable, proposal.TargetField, proposal.RelationshipType)
	return action, b.String()
}

// junctionPreview covers many-to-many: create a junction table with a
// composite unique key, expand the array column into one row per element,
// drop the raw column.
func (g *ddlPreviewGenerator) junctionPreview(proposal *models.RelationshipProposal, sourceKeyColumn string) (string, string) {
	junctionName := fmt.Sprintf("%s_%s_link",
		inflection.Singular(proposal.SourceTable), inflection.Singular(proposal.TargetTable))
	sourceCol := inflection.Singular(proposal.SourceTable) + "_id"
	targetCol := inflection.Singular(proposal.TargetTable) + "_id"
	if sourceCol == targetCol {
		// Self-referential junctions need distinct column names.
		targetCol = "related_" + targetCol
	}

	junction := g.dialect.QuoteIdentifier(junctionName)
	qSourceCol := g.dialect.QuoteIdentifier(sourceCol)
	qTargetCol := g.dialect.QuoteIdentifier(targetCol)
	source := g.dialect.QuoteIdentifier(proposal.SourceTable)
	rawColumn := g.dialect.QuoteIdentifier(proposal.SourceField)
	sourceKey := g.dialect.QuoteIdentifier(sourceKeyColumn)
	unique := g.dialect.QuoteIdentifier("uq_" + junctionName)

	from, element := g.dialect.ArrayElementsFrom(proposal.SourceTable, proposal.SourceField)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", junction)
	fmt.Fprintf(&b, "    %s TEXT NOT NULL,\n", qSourceCol)
	fmt.Fprintf(&b, "    %s TEXT NOT NULL,\n", qTargetCol)
	fmt.Fprintf(&b, "    CONSTRAINT %s UNIQUE (%s, %s)\n", unique, qSourceCol, qTargetCol)
	fmt.Fprintf(&b, ");\n")
	fmt.Fprintf(&b, "INSERT INTO %s (%s, %s)\n", junction, qSourceCol, qTargetCol)
	fmt.Fprintf(&b, "SELECT s.%s, %s\nFROM %s\nWHERE %s IS NOT NULL;\n",
		sourceKey, element, from, element)
	fmt.Fprintf(&b, "ALTER TABLE %s DROP COLUMN %s;", source, rawColumn)

	action := fmt.Sprintf("Create junction table %s linking %s and %s (many-to-many)",
		junctionName, proposal.SourceTable, proposal.TargetTable)
	return action, b.String()
}
