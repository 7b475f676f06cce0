package domain

import (
	"time"

	"github.com/google/uuid"
)

// VersionRecord is one immutable historical snapshot of a record. It is
// created as a side effect of a qualifying save, never updated, and removed
// only by retention pruning or when the owning record is deleted.
type VersionRecord struct {
	ID       int64     `json:"id"`
	RecordID uuid.UUID `json:"record_id"`
	Version  int64     `json:"version"`
	// VersionedType archives the owning record's discriminator value. It is
	// stored under its own column so it cannot collide with the history
	// table's own discriminator.
	VersionedType string         `json:"versioned_type,omitempty"`
	Fields        map[string]any `json:"fields"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Persisted reports whether the snapshot has been written to the history
// table. Transient snapshots are not valid revert targets.
func (v VersionRecord) Persisted() bool {
	return v.ID != 0
}

// BelongsTo reports whether the snapshot was taken from the given record.
func (v VersionRecord) BelongsTo(r Record) bool {
	return v.RecordID == r.ID
}
