package domain

import (
	"fmt"
	"strings"
)

// FieldType represents the storage type of a versioned column.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeVarchar   FieldType = "varchar"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeBigint    FieldType = "bigint"
	FieldTypeFloat     FieldType = "float"
	FieldTypeNumeric   FieldType = "numeric"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
)

// ParseFieldType maps a configured type name onto a FieldType.
func ParseFieldType(value string) (FieldType, error) {
	switch FieldType(strings.ToLower(strings.TrimSpace(value))) {
	case FieldTypeText:
		return FieldTypeText, nil
	case FieldTypeVarchar:
		return FieldTypeVarchar, nil
	case FieldTypeInteger:
		return FieldTypeInteger, nil
	case FieldTypeBigint:
		return FieldTypeBigint, nil
	case FieldTypeFloat:
		return FieldTypeFloat, nil
	case FieldTypeNumeric:
		return FieldTypeNumeric, nil
	case FieldTypeBoolean:
		return FieldTypeBoolean, nil
	case FieldTypeTimestamp:
		return FieldTypeTimestamp, nil
	case FieldTypeJSON:
		return FieldTypeJSON, nil
	default:
		return "", fmt.Errorf("unknown field type %q", value)
	}
}

// FieldDefinition describes one domain column of a versioned type. Length,
// precision and scale are carried into the history table so the replicated
// column matches the source exactly.
type FieldDefinition struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Length    int       `json:"length,omitempty"`    // varchar only
	Precision int       `json:"precision,omitempty"` // numeric only
	Scale     int       `json:"scale,omitempty"`     // numeric only
	Default   string    `json:"default,omitempty"`   // SQL literal, verbatim
	Required  bool      `json:"required,omitempty"`
}

// Definition is the static shape of a versioned type: its live table, its
// history table, and the envelope column names. Behavioral options (watch
// lists, retention limits, conditions) live with the store, not here.
type Definition struct {
	Name          string `json:"name"`
	Table         string `json:"table"`
	HistoryTable  string `json:"history_table,omitempty"`  // default <table>_versions
	ForeignKey    string `json:"foreign_key,omitempty"`    // default record_id
	VersionColumn string `json:"version_column,omitempty"` // default version
	Discriminator string `json:"discriminator,omitempty"`  // live discriminator column, empty when unused
	// VersionedTypeColumn names the history column that archives the live
	// discriminator value. Distinct from any discriminator the history table
	// itself may carry.
	VersionedTypeColumn string            `json:"versioned_type_column,omitempty"` // default versioned_type
	Locking             bool              `json:"locking,omitempty"`               // optimistic locking on the version column
	Fields              []FieldDefinition `json:"fields"`
	Exclude             []string          `json:"exclude,omitempty"` // columns never replicated
}

// Normalize fills defaulted names and validates the definition.
func (d Definition) Normalize() (Definition, error) {
	if strings.TrimSpace(d.Table) == "" {
		return Definition{}, fmt.Errorf("definition %q: table is required", d.Name)
	}
	if d.Name == "" {
		d.Name = d.Table
	}
	if d.HistoryTable == "" {
		d.HistoryTable = d.Table + "_versions"
	}
	if d.HistoryTable == d.Table {
		return Definition{}, fmt.Errorf("definition %q: history table must differ from live table", d.Name)
	}
	if d.ForeignKey == "" {
		d.ForeignKey = "record_id"
	}
	if d.VersionColumn == "" {
		d.VersionColumn = "version"
	}
	if d.VersionedTypeColumn == "" {
		d.VersionedTypeColumn = "versioned_type"
	}
	if len(d.Fields) == 0 {
		return Definition{}, fmt.Errorf("definition %q: at least one field is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, field := range d.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return Definition{}, fmt.Errorf("definition %q: field with empty name", d.Name)
		}
		if _, dup := seen[name]; dup {
			return Definition{}, fmt.Errorf("definition %q: duplicate field %q", d.Name, name)
		}
		seen[name] = struct{}{}
	}
	return d, nil
}

// ReservedColumns returns the envelope column names that may never be treated
// as domain fields: primary key, discriminator, version, lock and the history
// table's archived-discriminator column.
func (d Definition) ReservedColumns() []string {
	reserved := []string{"id", d.VersionColumn, d.VersionedTypeColumn, d.ForeignKey}
	if d.Discriminator != "" {
		reserved = append(reserved, d.Discriminator)
	}
	return reserved
}
