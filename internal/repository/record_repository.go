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

// recordRepository implements Records over pgx for one definition.
type recordRepository struct {
	def  domain.Definition
	exec db.DBTX
}

// NewRecords creates a live-row repository bound to a pool or transaction.
func NewRecords(def domain.Definition, exec db.DBTX) Records {
	return &recordRepository{def: def, exec: exec}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnNames lists the selectable columns of the live table in scan order:
// envelope first, then domain fields, then timestamps.
func (r *recordRepository) columnNames() []string {
	names := []string{"id", quoteIdent(r.def.VersionColumn)}
	if r.def.Discriminator != "" {
		names = append(names, quoteIdent(r.def.Discriminator))
	}
	for _, field := range r.def.Fields {
		names = append(names, quoteIdent(field.Name))
	}
	return append(names, "created_at", "updated_at")
}

// Get retrieves a live row by primary key.
func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = $1",
		strings.Join(r.columnNames(), ", "), quoteIdent(r.def.Table),
	)

	rec := domain.Record{Fields: make(map[string]any, len(r.def.Fields))}
	targets := []any{&rec.ID, &rec.Version}
	var discriminator *string
	if r.def.Discriminator != "" {
		targets = append(targets, &discriminator)
	}
	fieldValues := make([]any, len(r.def.Fields))
	for i := range fieldValues {
		targets = append(targets, &fieldValues[i])
	}
	targets = append(targets, &rec.CreatedAt, &rec.UpdatedAt)

	if err := r.exec.QueryRow(ctx, query, id).Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	if discriminator != nil {
		rec.Type = *discriminator
	}
	for i, field := range r.def.Fields {
		rec.Fields[field.Name] = fieldValues[i]
	}
	return rec, nil
}

// Insert writes a new live row.
func (r *recordRepository) Insert(ctx context.Context, rec *domain.Record) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	columns := []string{"id", quoteIdent(r.def.VersionColumn)}
	args := []any{rec.ID, rec.Version}
	if r.def.Discriminator != "" {
		columns = append(columns, quoteIdent(r.def.Discriminator))
		args = append(args, nullableString(rec.Type))
	}
	for _, field := range r.def.Fields {
		columns = append(columns, quoteIdent(field.Name))
		args = append(args, rec.Fields[field.Name])
	}
	columns = append(columns, "created_at", "updated_at")
	args = append(args, rec.CreatedAt, rec.UpdatedAt)

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(r.def.Table), strings.Join(columns, ", "), placeholders(len(args)),
	)
	if _, err := r.exec.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	return nil
}

// Update writes the row unconditionally.
func (r *recordRepository) Update(ctx context.Context, rec *domain.Record) error {
	query, args := r.updateQuery(rec, nil)
	tag, err := r.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// UpdateLocked writes the row only when the persisted version still matches.
func (r *recordRepository) UpdateLocked(ctx context.Context, rec *domain.Record, expectedVersion int64) error {
	query, args := r.updateQuery(rec, &expectedVersion)
	tag, err := r.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s at version %d: %w", rec.ID, expectedVersion, ErrStaleRecord)
	}
	return nil
}

// Delete removes the live row. History rows follow via the foreign key's
// cascade.
func (r *recordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdent(r.def.Table))
	tag, err := r.exec.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *recordRepository) updateQuery(rec *domain.Record, expectedVersion *int64) (string, []any) {
	rec.UpdatedAt = time.Now()

	assignments := []string{fmt.Sprintf("%s = $1", quoteIdent(r.def.VersionColumn))}
	args := []any{rec.Version}
	if r.def.Discriminator != "" {
		args = append(args, nullableString(rec.Type))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", quoteIdent(r.def.Discriminator), len(args)))
	}
	for _, field := range r.def.Fields {
		args = append(args, rec.Fields[field.Name])
		assignments = append(assignments, fmt.Sprintf("%s = $%d", quoteIdent(field.Name), len(args)))
	}
	args = append(args, rec.UpdatedAt)
	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, rec.ID)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d",
		quoteIdent(r.def.Table), strings.Join(assignments, ", "), len(args),
	)
	if expectedVersion != nil {
		args = append(args, *expectedVersion)
		query += fmt.Sprintf(" AND %s = $%d", quoteIdent(r.def.VersionColumn), len(args))
	}
	return query, args
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
