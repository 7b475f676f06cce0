package versioned

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verstore/verstore/internal/db"
	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/internal/repository"
	"github.com/verstore/verstore/internal/schema"
)

// Store binds a registered type to a database connection. Every save runs
// inside a single transaction covering the row write, the snapshot and the
// retention prune, so a snapshot failure rolls back the save that triggered
// it.
type Store struct {
	typ  *Type
	conn *db.Connection
}

// NewStore creates a store for a registered type.
func NewStore(typ *Type, conn *db.Connection) *Store {
	return &Store{typ: typ, conn: conn}
}

// Type returns the registered type.
func (s *Store) Type() *Type {
	return s.typ
}

// Definition returns the normalized definition of the registered type.
func (s *Store) Definition() domain.Definition {
	return s.typ.Definition()
}

// VersionedColumns returns a copy of the type's replicated column set.
func (s *Store) VersionedColumns() []domain.FieldDefinition {
	return s.typ.VersionedColumns()
}

// Get retrieves the live row.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	return s.records(s.conn.Pool).Get(ctx, id)
}

// Save persists the record, writing a snapshot when the save qualifies and
// pruning snapshots beyond the retention limit.
func (s *Store) Save(ctx context.Context, rec *domain.Record) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return save(ctx, s.typ, s.records(tx), s.versions(tx), rec)
	})
}

// SaveSuppressed persists the record with versioning and optimistic locking
// disabled for this one save.
func (s *Store) SaveSuppressed(ctx context.Context, rec *domain.Record) error {
	return s.Save(WithoutVersioning(WithoutLocking(ctx)), rec)
}

// Delete removes the record and all of its snapshots.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.versions(tx).DeleteForRecord(ctx, id); err != nil {
			return err
		}
		return s.records(tx).Delete(ctx, id)
	})
}

// History returns every snapshot of a record ordered by version.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).List(ctx, id)
}

// VersionAt returns one snapshot of a record by version number.
func (s *Store) VersionAt(ctx context.Context, id uuid.UUID, version int64) (domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).GetByVersion(ctx, id, version)
}

// Previous returns the snapshot of the same owner immediately preceding vr.
func (s *Store) Previous(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).Before(ctx, vr)
}

// Next returns the snapshot of the same owner immediately following vr.
func (s *Store) Next(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).After(ctx, vr)
}

// Earliest returns the lowest-versioned snapshot in the whole history table.
// It is not scoped to one record.
func (s *Store) Earliest(ctx context.Context) (domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).Earliest(ctx)
}

// Latest returns the highest-versioned snapshot in the whole history table.
// It is not scoped to one record.
func (s *Store) Latest(ctx context.Context) (domain.VersionRecord, error) {
	return s.versions(s.conn.Pool).Latest(ctx)
}

// NextVersion reports the number the next snapshot of the record would get.
func (s *Store) NextVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return 1, nil
	} else if err != nil {
		return 0, err
	}
	return nextVersion(ctx, s.versions(s.conn.Pool), id, rec.Version, false)
}

// CreateRecordTable creates the live table for this type if it does not
// exist. Runs before CreateVersionedTable on a fresh database so the history
// table has a live table to reference.
func (s *Store) CreateRecordTable(ctx context.Context) error {
	return schema.NewManager(s.conn.Pool).CreateRecordTable(ctx, s.typ.def)
}

// HasVersionColumn reports whether the live table already carries this type's
// version column.
func (s *Store) HasVersionColumn(ctx context.Context) (bool, error) {
	return schema.NewManager(s.conn.Pool).HasColumn(ctx, s.typ.def.Table, s.typ.def.VersionColumn)
}

// CreateVersionedTable brings the versioning schema for this type up to date.
func (s *Store) CreateVersionedTable(ctx context.Context) error {
	return schema.NewManager(s.conn.Pool).CreateVersionedTable(ctx, s.typ.def)
}

// DropVersionedTable drops this type's history table.
func (s *Store) DropVersionedTable(ctx context.Context) error {
	return schema.NewManager(s.conn.Pool).DropVersionedTable(ctx, s.typ.def)
}

func (s *Store) records(exec db.DBTX) repository.Records {
	return repository.NewRecords(s.typ.def, exec)
}

func (s *Store) versions(exec db.DBTX) repository.Versions {
	return repository.NewVersions(s.typ.def, s.typ.columns, exec)
}

// save is the full pipeline: decide whether a snapshot is pending, assign the
// next version number, write the row, write the snapshot, prune.
func save(ctx context.Context, typ *Type, records repository.Records, versions repository.Versions, rec *domain.Record) error {
	if rec == nil {
		return errors.New("nil record")
	}

	isNew := false
	var old domain.Record
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
		isNew = true
	} else {
		var err error
		old, err = records.Get(ctx, rec.ID)
		if errors.Is(err, repository.ErrNotFound) {
			isNew = true
		} else if err != nil {
			return fmt.Errorf("failed to load current state: %w", err)
		}
	}

	lockActive := typ.def.Locking && !LockingSuppressed(ctx)

	// Before-save: record whether a snapshot is pending. Creation always
	// snapshots; updates snapshot when the condition passes and the record
	// is altered.
	pending := false
	if !VersioningSuppressed(ctx) {
		pending = isNew || typ.ShouldSnapshot(&old, rec)
	}

	// Assign the next version number unless the locked update will bump it.
	if pending && (isNew || !lockActive) {
		next, err := nextVersion(ctx, versions, rec.ID, old.Version, isNew)
		if err != nil {
			return err
		}
		rec.Version = next
	}

	switch {
	case isNew:
		if rec.Version == 0 {
			rec.Version = 1
		}
		if err := records.Insert(ctx, rec); err != nil {
			return err
		}
	case lockActive:
		// The version column doubles as the lock counter: the update only
		// matches while the persisted version still equals the one the caller
		// loaded the record at.
		expected := rec.Version
		rec.Version = expected + 1
		if err := records.UpdateLocked(ctx, rec, expected); err != nil {
			return err
		}
	default:
		if err := records.Update(ctx, rec); err != nil {
			return err
		}
	}

	if !pending {
		return nil
	}

	// After-save: persist the snapshot. A failure here surfaces to the
	// caller and rolls back the surrounding transaction.
	vr := typ.snapshot(rec)
	if err := versions.Insert(ctx, &vr); err != nil {
		return err
	}

	// After-save: enforce the sliding retention window.
	if typ.opts.Limit > 0 {
		if _, err := versions.Prune(ctx, rec.ID, rec.Version-int64(typ.opts.Limit)); err != nil {
			return err
		}
	}
	return nil
}

// nextVersion numbers the pending snapshot: 1 for a new record, otherwise one
// past the highest persisted snapshot. The persisted maximum wins over the
// record's own counter so out-of-band history deletions cannot cause reuse.
func nextVersion(ctx context.Context, versions repository.Versions, recordID uuid.UUID, currentVersion int64, isNew bool) (int64, error) {
	if isNew {
		return 1, nil
	}
	max, err := versions.MaxVersion(ctx, recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}
	if max > 0 {
		return max + 1, nil
	}
	return currentVersion + 1, nil
}
