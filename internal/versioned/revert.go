package versioned

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/internal/repository"
)

var errRevertSaveFailed = errors.New("revert save failed")

// RevertTo copies the versioned columns of the given version back onto the
// record and sets its version number. It reports false without touching the
// record when the version does not exist for this record.
func (s *Store) RevertTo(ctx context.Context, rec *domain.Record, version int64) bool {
	return revertTo(ctx, s.typ, s.versions(s.conn.Pool), rec, version)
}

// RevertToRecord reverts onto a snapshot the caller already holds. It reports
// false when the snapshot is transient or belongs to a different record.
func (s *Store) RevertToRecord(rec *domain.Record, vr domain.VersionRecord) bool {
	if rec == nil || !vr.Persisted() || !vr.BelongsTo(*rec) {
		return false
	}
	s.typ.apply(rec, vr)
	return true
}

// RevertToAndSave reverts to the given version and saves the result with
// versioning and optimistic locking suppressed, all in one transaction. A
// failing save is reported as false, not propagated; the transaction rolls
// back so the record is untouched.
func (s *Store) RevertToAndSave(ctx context.Context, rec *domain.Record, version int64) bool {
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if !revertAndSave(ctx, s.typ, s.records(tx), s.versions(tx), rec, version) {
			return errRevertSaveFailed
		}
		return nil
	})
	return err == nil
}

func revertTo(ctx context.Context, typ *Type, versions repository.Versions, rec *domain.Record, version int64) bool {
	if rec == nil {
		return false
	}
	vr, err := versions.GetByVersion(ctx, rec.ID, version)
	if err != nil {
		return false
	}
	typ.apply(rec, vr)
	return true
}

func revertAndSave(ctx context.Context, typ *Type, records repository.Records, versions repository.Versions, rec *domain.Record, version int64) bool {
	if !revertTo(ctx, typ, versions, rec, version) {
		return false
	}
	ctx = WithoutVersioning(WithoutLocking(ctx))
	if err := save(ctx, typ, records, versions, rec); err != nil {
		log.Printf("[versioned] revert save of record %s to version %d failed: %v", rec.ID, version, err)
		return false
	}
	return true
}
