package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record represents the live row of a versioned type. Domain columns are held
// in Fields keyed by column name; the envelope columns (id, version, type
// discriminator, timestamps) are tracked explicitly.
type Record struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type,omitempty"` // discriminator value, empty when the type has none
	Version   int64          `json:"version"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewRecord creates a record with a fresh identifier.
func NewRecord(fields map[string]any) Record {
	now := time.Now()
	return Record{
		ID:        uuid.New(),
		Fields:    CloneFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithField returns a copy of the record with one field added or replaced.
func (r Record) WithField(key string, value any) Record {
	fields := CloneFields(r.Fields)
	fields[key] = value
	r.Fields = fields
	r.UpdatedAt = time.Now()
	return r
}

// WithFields returns a copy of the record with the full field map replaced.
func (r Record) WithFields(fields map[string]any) Record {
	r.Fields = CloneFields(fields)
	r.UpdatedAt = time.Now()
	return r
}

// CloneFields makes a shallow copy of a field map. A nil input yields an
// empty, writable map.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
