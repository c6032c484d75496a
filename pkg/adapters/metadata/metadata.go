// Package metadata provides access to the source system's declared link
// metadata, when the export included any. Declared links are optional
// evidence: analysis runs fine without them.
package metadata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/schemalift-inc/schemalift-engine/pkg/models"
)

// SchemaMetadataSource supplies declared link descriptors.
type SchemaMetadataSource interface {
	// ListDeclaredLinks returns all link declarations from the source
	// system's schema export.
	ListDeclaredLinks(ctx context.Context) ([]models.LinkDescriptor, error)

	// ListTableAliases maps the source system's opaque table IDs to
	// imported table names. May be empty when IDs are already names.
	ListTableAliases(ctx context.Context) (map[string]string, error)
}

// ============================================================================
// Static source
// ============================================================================

type staticSource struct {
	links   []models.LinkDescriptor
	aliases map[string]string
}

// NewStaticSource wraps an already-loaded descriptor list. Used by tests
// and by callers that fetch metadata themselves.
func NewStaticSource(links []models.LinkDescriptor, aliases map[string]string) SchemaMetadataSource {
	return &staticSource{links: links, aliases: aliases}
}

func (s *staticSource) ListDeclaredLinks(ctx context.Context) ([]models.LinkDescriptor, error) {
	return s.links, nil
}

func (s *staticSource) ListTableAliases(ctx context.Context) (map[string]string, error) {
	return s.aliases, nil
}

// ============================================================================
// YAML file source
// ============================================================================

type fileSource struct {
	path string
}

// NewFileSource reads descriptors from a YAML document of the form:
//
//	tables:
//	  tblCUST001: customers
//	links:
//	  - source_table: orders
//	    source_field: customer_ref
//	    target_table_id: tblCUST001
//	    is_symmetric: false
//	    has_inverse_field: true
//	    is_required: false
func NewFileSource(path string) SchemaMetadataSource {
	return &fileSource{path: path}
}

type linkFile struct {
	Tables map[string]string       `yaml:"tables"`
	Links  []models.LinkDescriptor `yaml:"links"`
}

func (s *fileSource) load() (*linkFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read link metadata file: %w", err)
	}
	var parsed linkFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse link metadata file: %w", err)
	}
	return &parsed, nil
}

func (s *fileSource) ListDeclaredLinks(ctx context.Context) ([]models.LinkDescriptor, error) {
	parsed, err := s.load()
	if err != nil {
		return nil, err
	}
	return parsed.Links, nil
}

func (s *fileSource) ListTableAliases(ctx context.Context) (map[string]string, error) {
	parsed, err := s.load()
	if err != nil {
		return nil, err
	}
	return parsed.Tables, nil
}
