package services

import (
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/zap"
)

// Naming rule identifiers recorded in match evidence.
const (
	NamingRuleExact  = "exact_table_name"
	NamingRuleSuffix = "reference_suffix"
	NamingRuleFuzzy  = "fuzzy_similarity"
)

// referenceSuffixes are stripped from column names before table lookup,
// longest first so "_uuid" wins over "_id"-style overlaps.
var referenceSuffixes = []string{"_ref", "_key", "_id", "Id"}

// NamingMatch is a candidate target table proposed from name shape alone.
// It never creates a proposal by itself; it only nominates a table to test.
type NamingMatch struct {
	TargetTable string
	Similarity  float64
	Rule        string
}

// NamingPatternMatcher proposes candidate target tables from column and
// table name shape. Pure heuristic: runs even when no data is available.
type NamingPatternMatcher interface {
	// MatchColumn returns the best target table candidate for a column,
	// or false when nothing clears the configured threshold. Columns
	// never match their own table.
	MatchColumn(tableName, columnName string) (*NamingMatch, bool)
}

type namingPatternMatcher struct {
	// lookup maps normalized table names (singular and plural forms) to
	// the canonical table name.
	lookup     map[string]string
	tableNames []string
	config     AnalysisConfig
	logger     *zap.Logger
}

// NewNamingPatternMatcher creates a matcher over the given table names.
func NewNamingPatternMatcher(tableNames []string, config AnalysisConfig, logger *zap.Logger) NamingPatternMatcher {
	m := &namingPatternMatcher{
		lookup:     make(map[string]string),
		tableNames: tableNames,
		config:     config.normalize(),
		logger:     logger.Named("naming-matcher"),
	}
	for _, name := range tableNames {
		normalized := normalizeName(name)
		m.lookup[normalized] = name

		singular := inflection.Singular(normalized)
		if _, exists := m.lookup[singular]; !exists {
			m.lookup[singular] = name
		}
		plural := inflection.Plural(normalized)
		if _, exists := m.lookup[plural]; !exists {
			m.lookup[plural] = name
		}
	}
	return m
}

func (m *namingPatternMatcher) MatchColumn(tableName, columnName string) (*NamingMatch, bool) {
	normalized := normalizeName(columnName)

	// Rule 1: column name is a table name (singular/plural tolerant).
	if target, ok := m.lookup[normalized]; ok && target != tableName {
		return &NamingMatch{TargetTable: target, Similarity: 1.0, Rule: NamingRuleExact}, true
	}

	// Rule 2: <base>_id / <base>Id / <base>_ref / <base>_key where <base>
	// (or its plural) is a table name.
	if base, ok := stripReferenceSuffix(columnName); ok {
		if target, found := m.lookup[normalizeName(base)]; found && target != tableName {
			return &NamingMatch{TargetTable: target, Similarity: 0.9, Rule: NamingRuleSuffix}, true
		}
	}

	// Rule 3: edit-distance similarity against every table name.
	var best *NamingMatch
	for _, candidate := range m.tableNames {
		if candidate == tableName {
			continue
		}
		similarity := nameSimilarity(normalized, normalizeName(candidate))
		if similarity < m.config.NamingSimilarityThreshold {
			continue
		}
		if best == nil || similarity > best.Similarity {
			best = &NamingMatch{TargetTable: candidate, Similarity: similarity, Rule: NamingRuleFuzzy}
		}
	}
	if best != nil {
		return best, true
	}
	return nil, false
}

// stripReferenceSuffix removes a foreign-key style suffix from a column
// name. Returns false when no suffix applies or nothing would remain.
func stripReferenceSuffix(columnName string) (string, bool) {
	for _, suffix := range referenceSuffixes {
		if strings.HasSuffix(columnName, suffix) && len(columnName) > len(suffix) {
			return columnName[:len(columnName)-len(suffix)], true
		}
	}
	return "", false
}

// normalizeName lowercases a name and drops separators so snake_case and
// camelCase spellings compare equal.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	return name
}

// nameSimilarity is a normalized edit-distance similarity in [0,1]:
// 1 means identical, 0 means entirely different.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return 1.0 - float64(distance)/float64(longest)
}
