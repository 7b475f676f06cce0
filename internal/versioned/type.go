// Package versioned implements the save state machine for versioned records:
// deciding when a snapshot is written, numbering versions, pruning old
// snapshots and restoring prior states.
package versioned

import (
	"fmt"

	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/internal/schema/validator"
	"github.com/verstore/verstore/pkg/fieldset"
)

// Options carries the behavioral settings of a versioned type.
type Options struct {
	// Condition gates snapshot creation for existing records. old is nil when
	// the record is new. A nil Condition always passes.
	Condition func(old, current *domain.Record) bool
	// Watch restricts the alteration test to the named fields. Empty means
	// any field change qualifies.
	Watch []string
	// Limit keeps only the most recent N snapshots per record. Zero keeps
	// everything.
	Limit int
}

// Type is a registered versioned type: its normalized definition, its
// behavioral options, and the replicated column set derived once here and
// reused for every save.
type Type struct {
	def     domain.Definition
	opts    Options
	columns []domain.FieldDefinition
}

// NewType registers a versioned type. The definition is normalized and the
// versioned column set derived up front; the schema cannot change for the
// lifetime of the Type.
func NewType(def domain.Definition, opts Options) (*Type, error) {
	normalized, err := def.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	if err := validator.ValidateDefinition(normalized); err != nil {
		return nil, fmt.Errorf("definition %q: %w", normalized.Name, err)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("definition %q: negative version limit", normalized.Name)
	}
	return &Type{
		def:     normalized,
		opts:    opts,
		columns: fieldset.VersionedColumns(normalized),
	}, nil
}

// Definition returns the normalized definition.
func (t *Type) Definition() domain.Definition {
	return t.def
}

// VersionedColumns returns a copy of the replicated column set.
func (t *Type) VersionedColumns() []domain.FieldDefinition {
	columns := make([]domain.FieldDefinition, len(t.columns))
	copy(columns, t.columns)
	return columns
}

// ShouldSnapshot reports whether saving current over old qualifies for a
// snapshot: the condition must pass and the record must be altered. It never
// mutates either record. Creation snapshots bypass this test.
func (t *Type) ShouldSnapshot(old, current *domain.Record) bool {
	if t.opts.Condition != nil && !t.opts.Condition(old, current) {
		return false
	}
	var oldFields map[string]any
	if old != nil {
		oldFields = old.Fields
	}
	return domain.Altered(oldFields, current.Fields, t.opts.Watch)
}

// snapshot clones the versioned columns of a record into a new, transient
// VersionRecord, applying the discriminator cross-mapping.
func (t *Type) snapshot(rec *domain.Record) domain.VersionRecord {
	fields := make(map[string]any, len(t.columns))
	for _, column := range t.columns {
		fields[column.Name] = rec.Fields[column.Name]
	}
	vr := domain.VersionRecord{
		RecordID: rec.ID,
		Version:  rec.Version,
		Fields:   fields,
	}
	if t.def.Discriminator != "" {
		vr.VersionedType = rec.Type
	}
	return vr
}

// apply copies the versioned columns of a snapshot back onto a record and
// sets its version number. Non-versioned fields keep their live values. The
// archived discriminator maps back onto the live discriminator.
func (t *Type) apply(rec *domain.Record, vr domain.VersionRecord) {
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(t.columns))
	}
	for _, column := range t.columns {
		rec.Fields[column.Name] = vr.Fields[column.Name]
	}
	rec.Version = vr.Version
	if t.def.Discriminator != "" {
		rec.Type = vr.VersionedType
	}
}
