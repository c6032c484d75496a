package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/schemalift-inc/schemalift-engine/pkg/adapters/datasource"
	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// ansiDialect renders previews with double-quote quoting and native array
// syntax, for assertions on the generated text.
type ansiDialect struct{}

func (ansiDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d ansiDialect) ArrayElementsFrom(table, column string) (string, string) {
	return fmt.Sprintf(`%s s, unnest(s.%s) AS elem`,
		d.QuoteIdentifier(table), d.QuoteIdentifier(column)), "elem"
}

func (d ansiDialect) ArrayFirstElement(table, column string) string {
	return fmt.Sprintf(`(%s)[1]`, d.QuoteIdentifier(column))
}

func (d ansiDialect) AddForeignKeyStatement(table, constraint, column, targetTable, targetColumn string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);`,
		d.QuoteIdentifier(table), d.QuoteIdentifier(constraint), d.QuoteIdentifier(column),
		d.QuoteIdentifier(targetTable), d.QuoteIdentifier(targetColumn))
}

func TestDDLPreview_ForeignKeyPath(t *testing.T) {
	generator := NewDDLPreviewGenerator(ansiDialect{}, zap.NewNop())

	proposal := &models.RelationshipProposal{
		SourceTable:      "orders",
		SourceField:      "customer_ref",
		TargetTable:      "customers",
		TargetField:      "id",
		RelationshipType: models.RelationshipManyToOne,
	}

	action, sql := generator.Generate(proposal, "id", models.ColumnShapeScalar)

	if !strings.Contains(action, "foreign key") {
		t.Errorf("action missing foreign key description: %q", action)
	}
	for _, want := range []string{
		`ALTER TABLE "orders" ADD COLUMN "customer_ref_fk" TEXT;`,
		`UPDATE "orders" SET "customer_ref_fk" = "customer_ref";`,
		`FOREIGN KEY ("customer_ref_fk") REFERENCES "customers" ("id");`,
		`ALTER TABLE "orders" DROP COLUMN "customer_ref";`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("sql missing %q:\n%s", want, sql)
		}
	}
}

func TestDDLPreview_ArrayColumnBackfillsFirstElement(t *testing.T) {
	generator := NewDDLPreviewGenerator(ansiDialect{}, zap.NewNop())

	proposal := &models.RelationshipProposal{
		SourceTable:      "posts",
		SourceField:      "author_refs",
		TargetTable:      "authors",
		TargetField:      "id",
		RelationshipType: models.RelationshipOneToMany,
	}

	_, sql := generator.Generate(proposal, "id", models.ColumnShapeArray)
	if !strings.Contains(sql, `("author_refs")[1]`) {
		t.Errorf("array backfill must take the first element:\n%s", sql)
	}
}

func TestDDLPreview_JunctionForManyToMany(t *testing.T) {
	generator := NewDDLPreviewGenerator(ansiDialect{}, zap.NewNop())

	proposal := &models.RelationshipProposal{
		SourceTable:      "posts",
		SourceField:      "tags",
		TargetTable:      "tags",
		TargetField:      "id",
		RelationshipType: models.RelationshipManyToMany,
	}

	action, sql := generator.Generate(proposal, "id", models.ColumnShapeArray)

	if !strings.Contains(action, "junction table") {
		t.Errorf("action missing junction description: %q", action)
	}
	for _, want := range []string{
		`CREATE TABLE "post_tag_link"`,
		`UNIQUE ("post_id", "tag_id")`,
		`INSERT INTO "post_tag_link" ("post_id", "tag_id")`,
		`unnest(s."tags")`,
		`ALTER TABLE "posts" DROP COLUMN "tags";`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("sql missing %q:\n%s", want, sql)
		}
	}
}

func TestDDLPreview_SelfReferentialJunctionColumnNames(t *testing.T) {
	generator := NewDDLPreviewGenerator(ansiDialect{}, zap.NewNop())

	proposal := &models.RelationshipProposal{
		SourceTable:      "people",
		SourceField:      "friends",
		TargetTable:      "people",
		TargetField:      "id",
		RelationshipType: models.RelationshipManyToMany,
	}

	_, sql := generator.Generate(proposal, "id", models.ColumnShapeArray)
	if !strings.Contains(sql, `"person_id"`) || !strings.Contains(sql, `"related_person_id"`) {
		t.Errorf("self-referential junction needs distinct column names:\n%s", sql)
	}
}

func TestDDLPreview_ReservedWordsAreQuoted(t *testing.T) {
	generator := NewDDLPreviewGenerator(ansiDialect{}, zap.NewNop())

	proposal := &models.RelationshipProposal{
		SourceTable:      "order",
		SourceField:      "select",
		TargetTable:      "group",
		TargetField:      "id",
		RelationshipType: models.RelationshipManyToOne,
	}

	_, sql := generator.Generate(proposal, "id", models.ColumnShapeScalar)
	for _, want := range []string{`"order"`, `"select"`, `"group"`} {
		if !strings.Contains(sql, want) {
			t.Errorf("sql missing quoted identifier %s:\n%s", want, sql)
		}
	}
}

// scratchSQLite creates a SQLite file, applies the setup statements, and
// returns a handle plus the path.
func scratchSQLite(t *testing.T, setup []string) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open scratch database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	return db, path
}

// splitStatements breaks a generated preview into executable statements.
func splitStatements(preview string) []string {
	var out []string
	for _, stmt := range strings.Split(preview, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func executePreview(t *testing.T, db *sql.DB, preview string) {
	t.Helper()
	for _, stmt := range splitStatements(preview) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("execute generated statement %q: %v", stmt, err)
		}
	}
}

func TestDDLPreview_ForeignKeyPreviewRunsOnSQLite(t *testing.T) {
	db, path := scratchSQLite(t, []string{
		`CREATE TABLE employees (id TEXT PRIMARY KEY)`,
		`INSERT INTO employees (id) VALUES ('e1'), ('e2'), ('e3'), ('e4')`,
		`CREATE TABLE departments (id TEXT PRIMARY KEY, employee_refs TEXT)`,
		`INSERT INTO departments (id, employee_refs) VALUES
			('d1', '["e1","e2"]'),
			('d2', '["e3"]'),
			('d3', NULL)`,
	})

	source, err := datasource.NewSQLiteDataSource(context.Background(), path, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite source: %v", err)
	}
	defer source.Close()

	generator := NewDDLPreviewGenerator(source, zap.NewNop())
	proposal := &models.RelationshipProposal{
		SourceTable:      "departments",
		SourceField:      "employee_refs",
		TargetTable:      "employees",
		TargetField:      "id",
		RelationshipType: models.RelationshipOneToMany,
	}

	_, preview := generator.Generate(proposal, "id", models.ColumnShapeArray)
	executePreview(t, db, preview)

	var first string
	if err := db.QueryRow(
		`SELECT "employee_refs_fk" FROM "departments" WHERE "id" = 'd1'`).Scan(&first); err != nil {
		t.Fatalf("read backfilled column: %v", err)
	}
	if first != "e1" {
		t.Errorf("backfill took %q, want first element e1", first)
	}

	var orphans int
	if err := db.QueryRow(`
		SELECT COUNT(*)
		FROM "departments" d
		WHERE d."employee_refs_fk" IS NOT NULL
			AND NOT EXISTS (SELECT 1 FROM "employees" e WHERE e."id" = d."employee_refs_fk")`).Scan(&orphans); err != nil {
		t.Fatalf("count orphans: %v", err)
	}
	if orphans != 0 {
		t.Errorf("backfill left %d orphaned references", orphans)
	}
}

func TestDDLPreview_JunctionPreviewRunsOnSQLite(t *testing.T) {
	db, path := scratchSQLite(t, []string{
		`CREATE TABLE tags (id TEXT PRIMARY KEY)`,
		`INSERT INTO tags (id) VALUES ('t1'), ('t2'), ('t3')`,
		`CREATE TABLE posts (id TEXT PRIMARY KEY, tags TEXT)`,
		`INSERT INTO posts (id, tags) VALUES
			('p1', '["t1","t2"]'),
			('p2', '["t3"]'),
			('p3', NULL)`,
	})

	source, err := datasource.NewSQLiteDataSource(context.Background(), path, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite source: %v", err)
	}
	defer source.Close()

	generator := NewDDLPreviewGenerator(source, zap.NewNop())
	proposal := &models.RelationshipProposal{
		SourceTable:      "posts",
		SourceField:      "tags",
		TargetTable:      "tags",
		TargetField:      "id",
		RelationshipType: models.RelationshipManyToMany,
	}

	_, preview := generator.Generate(proposal, "id", models.ColumnShapeArray)
	if !strings.Contains(preview, `json_each(s."tags")`) {
		t.Fatalf("sqlite junction must expand JSON arrays with json_each:\n%s", preview)
	}
	executePreview(t, db, preview)

	var links int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "post_tag_link"`).Scan(&links); err != nil {
		t.Fatalf("count junction rows: %v", err)
	}
	if links != 3 {
		t.Errorf("junction holds %d rows, want 3", links)
	}

	var pair int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM "post_tag_link" WHERE "post_id" = 'p1' AND "tag_id" = 't2'`).Scan(&pair); err != nil {
		t.Fatalf("look up junction pair: %v", err)
	}
	if pair != 1 {
		t.Errorf("expected exactly one p1/t2 link, got %d", pair)
	}
}
