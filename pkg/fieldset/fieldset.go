// Package fieldset derives the set of columns a versioned type replicates
// into its history table.
package fieldset

import (
	"github.com/verstore/verstore/internal/domain"
)

// VersionedColumns computes the replicated column set for a definition: every
// domain field minus the envelope columns (primary key, discriminator,
// version, lock and the archived-discriminator column) minus explicit
// exclusions. The result preserves declaration order. Callers derive this
// once at registration time and keep it on the registered type.
func VersionedColumns(def domain.Definition) []domain.FieldDefinition {
	skip := make(map[string]struct{})
	for _, name := range def.ReservedColumns() {
		skip[name] = struct{}{}
	}
	for _, name := range def.Exclude {
		skip[name] = struct{}{}
	}

	columns := make([]domain.FieldDefinition, 0, len(def.Fields))
	for _, field := range def.Fields {
		if _, excluded := skip[field.Name]; excluded {
			continue
		}
		columns = append(columns, field)
	}
	return columns
}

// Names returns the column names of a derived field set in order.
func Names(columns []domain.FieldDefinition) []string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	return names
}
