// Package schema translates a versioned type definition into the companion
// history-table schema and manages both tables' DDL.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/verstore/verstore/internal/db"
	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/pkg/fieldset"
)

// Manager executes schema operations for versioned types.
type Manager struct {
	exec db.DBTX
}

// NewManager creates a schema manager over a pool or transaction.
func NewManager(exec db.DBTX) *Manager {
	return &Manager{exec: exec}
}

// CreateRecordTable creates the live table for a definition if it does not
// exist. Intended for bootstrap tooling; production tables usually come from
// the application's own migrations.
func (m *Manager) CreateRecordTable(ctx context.Context, def domain.Definition) error {
	if _, err := m.exec.Exec(ctx, CreateRecordTableStatement(def)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", def.Table, err)
	}
	return nil
}

// CreateVersionedTable brings the versioning schema for a definition up to
// date: it adds the version column to the live table when absent, creates the
// history table with one column per versioned field, and indexes the foreign
// key. Safe to run repeatedly.
func (m *Manager) CreateVersionedTable(ctx context.Context, def domain.Definition) error {
	for _, stmt := range CreateVersionedTableStatements(def) {
		if _, err := m.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create versioned table %s: %w", def.HistoryTable, err)
		}
	}
	return nil
}

// DropVersionedTable drops the history table for a definition.
func (m *Manager) DropVersionedTable(ctx context.Context, def domain.Definition) error {
	if _, err := m.exec.Exec(ctx, DropVersionedTableStatement(def)); err != nil {
		return fmt.Errorf("failed to drop versioned table %s: %w", def.HistoryTable, err)
	}
	return nil
}

// HasColumn reports whether a table currently has the named column.
func (m *Manager) HasColumn(ctx context.Context, table, column string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = $1 AND column_name = $2
	)`
	var exists bool
	if err := m.exec.QueryRow(ctx, query, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to inspect column %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// CreateRecordTableStatement renders the live-table DDL for a definition.
func CreateRecordTableStatement(def domain.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(def.Table))
	b.WriteString("\tid UUID PRIMARY KEY,\n")
	if def.Discriminator != "" {
		fmt.Fprintf(&b, "\t%s TEXT,\n", quoteIdent(def.Discriminator))
	}
	fmt.Fprintf(&b, "\t%s BIGINT NOT NULL DEFAULT 0,\n", quoteIdent(def.VersionColumn))
	for _, field := range def.Fields {
		fmt.Fprintf(&b, "\t%s %s,\n", quoteIdent(field.Name), ColumnType(field))
	}
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n")
	b.WriteString(")")
	return b.String()
}

// CreateVersionedTableStatements renders the idempotent statement sequence
// that establishes the versioning schema for a definition.
func CreateVersionedTableStatements(def domain.Definition) []string {
	statements := []string{
		fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGINT NOT NULL DEFAULT 0",
			quoteIdent(def.Table), quoteIdent(def.VersionColumn),
		),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(def.HistoryTable))
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	fmt.Fprintf(&b, "\t%s UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,\n",
		quoteIdent(def.ForeignKey), quoteIdent(def.Table))
	fmt.Fprintf(&b, "\t%s BIGINT NOT NULL,\n", quoteIdent(def.VersionColumn))
	if def.Discriminator != "" {
		// The archived discriminator keeps its own column name so the history
		// table's discriminator stays free for its own use.
		fmt.Fprintf(&b, "\t%s TEXT,\n", quoteIdent(def.VersionedTypeColumn))
	}
	for _, field := range fieldset.VersionedColumns(def) {
		fmt.Fprintf(&b, "\t%s %s,\n", quoteIdent(field.Name), ColumnType(field))
	}
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n")
	b.WriteString(")")
	statements = append(statements, b.String())

	statements = append(statements, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(fmt.Sprintf("idx_%s_%s", def.HistoryTable, def.ForeignKey)),
		quoteIdent(def.HistoryTable), quoteIdent(def.ForeignKey),
	))
	return statements
}

// DropVersionedTableStatement renders the history-table drop.
func DropVersionedTableStatement(def domain.Definition) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(def.HistoryTable))
}

// ColumnType renders the SQL type for a field, carrying length, precision,
// scale, default and required-ness so the replicated column matches its
// source.
func ColumnType(field domain.FieldDefinition) string {
	var sqlType string
	switch field.Type {
	case domain.FieldTypeVarchar:
		if field.Length > 0 {
			sqlType = fmt.Sprintf("VARCHAR(%d)", field.Length)
		} else {
			sqlType = "VARCHAR"
		}
	case domain.FieldTypeInteger:
		sqlType = "INTEGER"
	case domain.FieldTypeBigint:
		sqlType = "BIGINT"
	case domain.FieldTypeFloat:
		sqlType = "DOUBLE PRECISION"
	case domain.FieldTypeNumeric:
		switch {
		case field.Precision > 0 && field.Scale > 0:
			sqlType = fmt.Sprintf("NUMERIC(%d,%d)", field.Precision, field.Scale)
		case field.Precision > 0:
			sqlType = fmt.Sprintf("NUMERIC(%d)", field.Precision)
		default:
			sqlType = "NUMERIC"
		}
	case domain.FieldTypeBoolean:
		sqlType = "BOOLEAN"
	case domain.FieldTypeTimestamp:
		sqlType = "TIMESTAMPTZ"
	case domain.FieldTypeJSON:
		sqlType = "JSONB"
	default:
		sqlType = "TEXT"
	}

	if field.Default != "" {
		sqlType += " DEFAULT " + field.Default
	}
	if field.Required {
		sqlType += " NOT NULL"
	}
	return sqlType
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
