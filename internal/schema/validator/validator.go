// Package validator checks that a versioned type definition can be turned
// into sound DDL before any statement runs.
package validator

import (
	"fmt"
	"strings"

	"github.com/verstore/verstore/internal/domain"
)

var lengthCapableTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeVarchar: {},
}

var precisionCapableTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeNumeric: {},
}

// ValidateDefinition ensures field definitions satisfy their type-specific
// constraints and that no field or exclusion collides with the envelope
// columns. The definition must already be normalized.
func ValidateDefinition(def domain.Definition) error {
	reserved := make(map[string]struct{})
	for _, column := range def.ReservedColumns() {
		reserved[column] = struct{}{}
	}

	fields := make(map[string]struct{}, len(def.Fields))
	for _, field := range def.Fields {
		if _, ok := reserved[field.Name]; ok {
			return fmt.Errorf("field %s collides with an envelope column", field.Name)
		}
		fields[field.Name] = struct{}{}

		if _, ok := lengthCapableTypes[field.Type]; field.Length > 0 && !ok {
			return fmt.Errorf("field %s cannot declare a length because type %s does not support it", field.Name, field.Type)
		}
		if _, ok := precisionCapableTypes[field.Type]; (field.Precision > 0 || field.Scale > 0) && !ok {
			return fmt.Errorf("field %s cannot declare precision or scale because type %s does not support them", field.Name, field.Type)
		}
		if field.Scale > 0 && field.Precision == 0 {
			return fmt.Errorf("field %s declares a scale without a precision", field.Name)
		}
		if field.Scale > field.Precision {
			return fmt.Errorf("field %s declares scale %d larger than precision %d", field.Name, field.Scale, field.Precision)
		}
	}

	for _, excluded := range def.Exclude {
		name := strings.TrimSpace(excluded)
		if name == "" {
			return fmt.Errorf("definition %s excludes an empty column name", def.Name)
		}
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("definition %s excludes unknown column %s", def.Name, name)
		}
	}
	return nil
}
