package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/verstore/verstore/internal/domain"
)

// ErrNotFound is returned when a record or version row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStaleRecord is returned when an optimistic-lock update matched no row
// because the persisted version moved on.
var ErrStaleRecord = errors.New("record version is stale")

// Records defines live-row operations for one versioned type.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Record, error)
	Insert(ctx context.Context, rec *domain.Record) error
	Update(ctx context.Context, rec *domain.Record) error
	// UpdateLocked updates the row only when its persisted version still
	// equals expectedVersion, returning ErrStaleRecord otherwise.
	UpdateLocked(ctx context.Context, rec *domain.Record, expectedVersion int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Versions defines history-row operations for one versioned type.
type Versions interface {
	Insert(ctx context.Context, vr *domain.VersionRecord) error
	GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.VersionRecord, error)
	List(ctx context.Context, recordID uuid.UUID) ([]domain.VersionRecord, error)
	MaxVersion(ctx context.Context, recordID uuid.UUID) (int64, error)
	// Before returns the latest snapshot of the same owner with a strictly
	// smaller version number; After the earliest with a strictly greater one.
	Before(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error)
	After(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error)
	// Earliest and Latest scan the whole history table, not a single owner.
	// Callers wanting per-record semantics must use List or GetByVersion.
	Earliest(ctx context.Context) (domain.VersionRecord, error)
	Latest(ctx context.Context) (domain.VersionRecord, error)
	// Prune deletes every snapshot of the owner with version <= throughVersion.
	Prune(ctx context.Context, recordID uuid.UUID, throughVersion int64) (int64, error)
	DeleteForRecord(ctx context.Context, recordID uuid.UUID) (int64, error)
}
