// Package apperrors holds the sentinel errors of the inference engine.
// Only ErrInvalidConfiguration and a failure to enumerate tables are
// fatal; every other failure is isolated to one candidate.
package apperrors

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNoDataSource         = errors.New("no data source configured")
	ErrNoTables             = errors.New("data source returned no tables")
	ErrAnalysisCancelled    = errors.New("analysis cancelled")
	ErrUnknownTargetTable   = errors.New("declared link references unknown table")
)

// IsConfigurationError reports whether err is a fatal configuration
// problem that should abort before any output is produced.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrNoDataSource)
}

// IsCancelled reports whether err stems from cooperative cancellation.
// Callers holding a partial report may still use it.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrAnalysisCancelled)
}
