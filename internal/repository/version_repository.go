package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verstore/verstore/internal/db"
	"github.com/verstore/verstore/internal/domain"
)

// versionRepository implements Versions over pgx for one definition. The
// replicated column list is supplied by the caller, derived once at type
// registration.
type versionRepository struct {
	def     domain.Definition
	columns []domain.FieldDefinition
	exec    db.DBTX
}

// NewVersions creates a history-row repository bound to a pool or transaction.
func NewVersions(def domain.Definition, columns []domain.FieldDefinition, exec db.DBTX) Versions {
	return &versionRepository{def: def, columns: columns, exec: exec}
}

func (r *versionRepository) columnNames() []string {
	names := []string{"id", quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn)}
	if r.def.Discriminator != "" {
		names = append(names, quoteIdent(r.def.VersionedTypeColumn))
	}
	for _, column := range r.columns {
		names = append(names, quoteIdent(column.Name))
	}
	return append(names, "created_at")
}

func (r *versionRepository) selectQuery(where, order string) string {
	query := fmt.Sprintf(
		"SELECT %s FROM %s",
		strings.Join(r.columnNames(), ", "), quoteIdent(r.def.HistoryTable),
	)
	if where != "" {
		query += " WHERE " + where
	}
	if order != "" {
		query += " " + order
	}
	return query
}

func (r *versionRepository) scanOne(row pgx.Row) (domain.VersionRecord, error) {
	vr := domain.VersionRecord{Fields: make(map[string]any, len(r.columns))}
	targets := []any{&vr.ID, &vr.RecordID, &vr.Version}
	var versionedType *string
	if r.def.Discriminator != "" {
		targets = append(targets, &versionedType)
	}
	fieldValues := make([]any, len(r.columns))
	for i := range fieldValues {
		targets = append(targets, &fieldValues[i])
	}
	targets = append(targets, &vr.CreatedAt)

	if err := row.Scan(targets...); err != nil {
		return domain.VersionRecord{}, err
	}

	if versionedType != nil {
		vr.VersionedType = *versionedType
	}
	for i, column := range r.columns {
		vr.Fields[column.Name] = fieldValues[i]
	}
	return vr, nil
}

// Insert persists a snapshot and fills in its surrogate id.
func (r *versionRepository) Insert(ctx context.Context, vr *domain.VersionRecord) error {
	if vr.CreatedAt.IsZero() {
		vr.CreatedAt = time.Now()
	}

	columns := []string{quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn)}
	args := []any{vr.RecordID, vr.Version}
	if r.def.Discriminator != "" {
		columns = append(columns, quoteIdent(r.def.VersionedTypeColumn))
		args = append(args, nullableString(vr.VersionedType))
	}
	for _, column := range r.columns {
		columns = append(columns, quoteIdent(column.Name))
		args = append(args, vr.Fields[column.Name])
	}
	columns = append(columns, "created_at")
	args = append(args, vr.CreatedAt)

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quoteIdent(r.def.HistoryTable), strings.Join(columns, ", "), placeholders(len(args)),
	)
	if err := r.exec.QueryRow(ctx, query, args...).Scan(&vr.ID); err != nil {
		return fmt.Errorf("failed to insert version %d of record %s: %w", vr.Version, vr.RecordID, err)
	}
	return nil
}

// GetByVersion retrieves one snapshot of a record by version number.
func (r *versionRepository) GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.VersionRecord, error) {
	query := r.selectQuery(
		fmt.Sprintf("%s = $1 AND %s = $2", quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn)), "",
	)
	vr, err := r.scanOne(r.exec.QueryRow(ctx, query, recordID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionRecord{}, fmt.Errorf("version %d of record %s: %w", version, recordID, ErrNotFound)
		}
		return domain.VersionRecord{}, fmt.Errorf("failed to get version %d of record %s: %w", version, recordID, err)
	}
	return vr, nil
}

// List returns every snapshot of a record ordered by version.
func (r *versionRepository) List(ctx context.Context, recordID uuid.UUID) ([]domain.VersionRecord, error) {
	query := r.selectQuery(
		quoteIdent(r.def.ForeignKey)+" = $1",
		"ORDER BY "+quoteIdent(r.def.VersionColumn)+" ASC",
	)
	rows, err := r.exec.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of record %s: %w", recordID, err)
	}
	defer rows.Close()

	var result []domain.VersionRecord
	for rows.Next() {
		vr, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		result = append(result, vr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version rows: %w", err)
	}
	return result, nil
}

// MaxVersion returns the highest persisted version number of a record, or 0
// when it has no history.
func (r *versionRepository) MaxVersion(ctx context.Context, recordID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(
		"SELECT COALESCE(MAX(%s), 0) FROM %s WHERE %s = $1",
		quoteIdent(r.def.VersionColumn), quoteIdent(r.def.HistoryTable), quoteIdent(r.def.ForeignKey),
	)
	var max int64
	if err := r.exec.QueryRow(ctx, query, recordID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max version of record %s: %w", recordID, err)
	}
	return max, nil
}

// Before returns the latest snapshot of the same owner strictly preceding the
// given one.
func (r *versionRepository) Before(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error) {
	query := r.selectQuery(
		fmt.Sprintf("%s = $1 AND %s < $2", quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn)),
		"ORDER BY "+quoteIdent(r.def.VersionColumn)+" DESC LIMIT 1",
	)
	return r.scanBoundary(ctx, query, vr.RecordID, vr.Version)
}

// After returns the earliest snapshot of the same owner strictly following
// the given one.
func (r *versionRepository) After(ctx context.Context, vr domain.VersionRecord) (domain.VersionRecord, error) {
	query := r.selectQuery(
		fmt.Sprintf("%s = $1 AND %s > $2", quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn)),
		"ORDER BY "+quoteIdent(r.def.VersionColumn)+" ASC LIMIT 1",
	)
	return r.scanBoundary(ctx, query, vr.RecordID, vr.Version)
}

// Earliest returns the snapshot with the lowest version number across the
// whole history table.
func (r *versionRepository) Earliest(ctx context.Context) (domain.VersionRecord, error) {
	query := r.selectQuery("", "ORDER BY "+quoteIdent(r.def.VersionColumn)+" ASC LIMIT 1")
	return r.scanBoundary(ctx, query)
}

// Latest returns the snapshot with the highest version number across the
// whole history table.
func (r *versionRepository) Latest(ctx context.Context) (domain.VersionRecord, error) {
	query := r.selectQuery("", "ORDER BY "+quoteIdent(r.def.VersionColumn)+" DESC LIMIT 1")
	return r.scanBoundary(ctx, query)
}

func (r *versionRepository) scanBoundary(ctx context.Context, query string, args ...any) (domain.VersionRecord, error) {
	vr, err := r.scanOne(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionRecord{}, ErrNotFound
		}
		return domain.VersionRecord{}, fmt.Errorf("failed to query version boundary: %w", err)
	}
	return vr, nil
}

// Prune deletes every snapshot of the owner with version <= throughVersion
// and reports how many rows went away.
func (r *versionRepository) Prune(ctx context.Context, recordID uuid.UUID, throughVersion int64) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1 AND %s <= $2",
		quoteIdent(r.def.HistoryTable), quoteIdent(r.def.ForeignKey), quoteIdent(r.def.VersionColumn),
	)
	tag, err := r.exec.Exec(ctx, query, recordID, throughVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to prune versions of record %s: %w", recordID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteForRecord removes all snapshots of a record.
func (r *versionRepository) DeleteForRecord(ctx context.Context, recordID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1",
		quoteIdent(r.def.HistoryTable), quoteIdent(r.def.ForeignKey),
	)
	tag, err := r.exec.Exec(ctx, query, recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete versions of record %s: %w", recordID, err)
	}
	return tag.RowsAffected(), nil
}
