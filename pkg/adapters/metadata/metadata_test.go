package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_ListDeclaredLinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.yaml")
	content := `tables:
  tblCUST001: customers
  tblTAGS001: tags
links:
  - source_table: orders
    source_field: customer_ref
    target_table_id: tblCUST001
    is_symmetric: false
    has_inverse_field: true
    is_required: true
  - source_table: posts
    source_field: tags
    target_table_id: tblTAGS001
    is_symmetric: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	links, err := NewFileSource(path).ListDeclaredLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "orders", links[0].SourceTable)
	assert.Equal(t, "customer_ref", links[0].SourceField)
	assert.Equal(t, "tblCUST001", links[0].TargetTableID)
	assert.True(t, links[0].HasInverseField)
	assert.True(t, links[0].IsRequired)
	assert.False(t, links[0].IsSymmetric)

	assert.True(t, links[1].IsSymmetric)
	assert.False(t, links[1].HasInverseField)

	aliases, err := NewFileSource(path).ListTableAliases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "customers", aliases["tblCUST001"])
	assert.Equal(t, "tags", aliases["tblTAGS001"])
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource("/nonexistent/links.yaml").ListDeclaredLinks(context.Background())
	assert.Error(t, err)
}

func TestFileSource_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("links: [not: closed"), 0o600))

	_, err := NewFileSource(path).ListDeclaredLinks(context.Background())
	assert.Error(t, err)
}

func TestStaticSource_Empty(t *testing.T) {
	src := NewStaticSource(nil, nil)

	links, err := src.ListDeclaredLinks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, links)

	aliases, err := src.ListTableAliases(context.Background())
	require.NoError(t, err)
	assert.Empty(t, aliases)
}
