package models

// LinkDescriptor is a link declaration exported by the source system's
// schema metadata. Targets are referenced by the source system's opaque
// table ID and must be resolved against the imported table set.
type LinkDescriptor struct {
	SourceTable     string `json:"source_table" yaml:"source_table"`
	SourceField     string `json:"source_field" yaml:"source_field"`
	TargetTableID   string `json:"target_table_id" yaml:"target_table_id"`
	IsSymmetric     bool   `json:"is_symmetric" yaml:"is_symmetric"`
	HasInverseField bool   `json:"has_inverse_field" yaml:"has_inverse_field"`
	IsRequired      bool   `json:"is_required" yaml:"is_required"`
}
