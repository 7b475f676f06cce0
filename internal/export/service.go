// Package export writes the version history of a record to CSV or XLSX files.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/verstore/verstore/internal/domain"
)

// Format selects the output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatXLSX):
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// HistorySource provides a type's definition, its replicated column set and
// the ordered snapshot history of a record. A versioned store satisfies it.
type HistorySource interface {
	Definition() domain.Definition
	VersionedColumns() []domain.FieldDefinition
	History(ctx context.Context, id uuid.UUID) ([]domain.VersionRecord, error)
}

// Result describes a finished export.
type Result struct {
	Path  string
	Rows  int
	Bytes int64
}

// Service streams version histories to files in the export directory.
type Service struct {
	source    HistorySource
	exportDir string
	now       func() time.Time
}

type Option func(*Service)

// WithExportDirectory overrides the directory exported files are written to.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func NewService(source HistorySource, opts ...Option) *Service {
	service := &Service{
		source:    source,
		exportDir: filepath.Join(os.TempDir(), "verstore-exports"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if strings.TrimSpace(service.exportDir) == "" {
		service.exportDir = filepath.Join(os.TempDir(), "verstore-exports")
	}
	return service
}

// ExportHistory writes every snapshot of the record to a file and returns the
// final path. The file appears atomically: rows stream to a temp file that is
// renamed into place only when complete.
func (s *Service) ExportHistory(ctx context.Context, recordID uuid.UUID, format Format) (Result, error) {
	if recordID == uuid.Nil {
		return Result{}, errors.New("record ID is required")
	}
	history, err := s.source.History(ctx, recordID)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	def := s.source.Definition()
	headers, rows := s.tabulate(def, history)

	if err := s.ensureExportDirectory(); err != nil {
		return Result{}, err
	}
	finalPath := filepath.Join(s.exportDir, s.fileName(def, recordID, format))

	var bytesWritten int64
	switch format {
	case FormatCSV:
		bytesWritten, err = s.writeCSV(finalPath, headers, rows)
	case FormatXLSX:
		bytesWritten, err = s.writeXLSX(finalPath, def, headers, rows)
	default:
		return Result{}, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return Result{}, err
	}

	log.Printf("[export] history of %s written (rows=%d path=%s)", recordID, len(rows), finalPath)
	return Result{Path: finalPath, Rows: len(rows), Bytes: bytesWritten}, nil
}

// tabulate lays out one row per snapshot: the envelope columns first, then the
// replicated columns in declaration order.
func (s *Service) tabulate(def domain.Definition, history []domain.VersionRecord) ([]string, [][]string) {
	columns := s.source.VersionedColumns()

	headers := []string{def.ForeignKey, def.VersionColumn}
	if def.Discriminator != "" {
		headers = append(headers, def.VersionedTypeColumn)
	}
	for _, column := range columns {
		headers = append(headers, column.Name)
	}
	headers = append(headers, "created_at")

	rows := make([][]string, 0, len(history))
	for _, vr := range history {
		row := make([]string, 0, len(headers))
		row = append(row, vr.RecordID.String(), fmt.Sprintf("%d", vr.Version))
		if def.Discriminator != "" {
			row = append(row, vr.VersionedType)
		}
		for _, column := range columns {
			row = append(row, formatValue(vr.Fields[column.Name]))
		}
		row = append(row, formatValue(vr.CreatedAt))
		rows = append(rows, row)
	}
	return headers, rows
}

func (s *Service) writeCSV(finalPath string, headers []string, rows [][]string) (int64, error) {
	tempFile, err := os.CreateTemp(s.exportDir, "history-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	if err := csvWriter.Write(headers); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return 0, fmt.Errorf("write history row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return 0, fmt.Errorf("flush rows: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("flush buffered rows: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return 0, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return 0, fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	return counter.count, nil
}

func (s *Service) writeXLSX(finalPath string, def domain.Definition, headers []string, rows [][]string) (int64, error) {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	sheet := sheetName(def)
	index, err := file.NewSheet(sheet)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := file.DeleteSheet("Sheet1"); err != nil {
			return 0, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	writeRow := func(rowIndex int, values []string) error {
		for colIndex, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex)
			if err != nil {
				return fmt.Errorf("address cell: %w", err)
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		return nil
	}
	if err := writeRow(1, headers); err != nil {
		return 0, err
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return 0, err
		}
	}

	tempFile, err := os.CreateTemp(s.exportDir, "history-*.xlsx")
	if err != nil {
		return 0, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}
	if err := file.Write(counter); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("flush workbook: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return 0, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return 0, fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	return counter.count, nil
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

func (s *Service) fileName(def domain.Definition, recordID uuid.UUID, format Format) string {
	base := sanitizeFileComponent(def.HistoryTable)
	if base == "" {
		base = "history"
	}
	return fmt.Sprintf("%s-%s-%s.%s", base, recordID.String(), s.now().UTC().Format("20060102T150405Z"), format)
}

func sheetName(def domain.Definition) string {
	name := strings.TrimSpace(def.HistoryTable)
	if name == "" {
		return "History"
	}
	// Sheet names top out at 31 characters.
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
