// Package ingestion bulk-imports tabular files as versioned records. Every
// imported row goes through the normal save pipeline, so each one gets its
// initial snapshot.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/verstore/verstore/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned when an input file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	headerSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
	}
)

// Saver persists one record per imported row. A versioned store satisfies it.
type Saver interface {
	Definition() domain.Definition
	VersionedColumns() []domain.FieldDefinition
	Save(ctx context.Context, rec *domain.Record) error
}

// RowError reports one rejected row. Row numbers are 1-based and count the
// header row.
type RowError struct {
	Row     int
	Message string
}

// Result summarizes an import run.
type Result struct {
	TotalRows      int
	Imported       int
	RowErrors      []RowError
	SkippedColumns []string
}

// Service imports CSV and XLSX files into one versioned type.
type Service struct {
	saver Saver
}

func NewService(saver Saver) *Service {
	return &Service{saver: saver}
}

// Import reads the tabular data and saves one record per row. Rows that fail
// to coerce or save are reported in the result and skipped; the import keeps
// going.
func (s *Service) Import(ctx context.Context, fileName string, data io.Reader) (Result, error) {
	rows, err := readTable(fileName, data)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{}, errors.New("file has no header row")
	}

	def := s.saver.Definition()
	columns := s.saver.VersionedColumns()
	byName := make(map[string]domain.FieldDefinition, len(columns))
	for _, column := range columns {
		byName[column.Name] = column
	}

	// Map header cells onto versioned columns. The discriminator column is
	// importable too; anything else is skipped.
	type target struct {
		field         domain.FieldDefinition
		discriminator bool
	}
	targets := make(map[int]target)
	var targetIndexes []int
	var skipped []string
	for i, cell := range rows[0] {
		name := normalizeHeader(cell)
		if name == "" {
			continue
		}
		if def.Discriminator != "" && name == def.Discriminator {
			targets[i] = target{discriminator: true}
			targetIndexes = append(targetIndexes, i)
			continue
		}
		if field, ok := byName[name]; ok {
			targets[i] = target{field: field}
			targetIndexes = append(targetIndexes, i)
			continue
		}
		skipped = append(skipped, name)
	}
	if len(targets) == 0 {
		return Result{}, errors.New("no header column matches a versioned column")
	}

	result := Result{TotalRows: len(rows) - 1, SkippedColumns: skipped}
	for rowIndex, row := range rows[1:] {
		rowNumber := rowIndex + 2

		fields := make(map[string]any, len(targets))
		discriminatorValue := ""
		rowErr := ""
		// Header order, so a row with several bad cells always reports the
		// same column.
		for _, cellIndex := range targetIndexes {
			tgt := targets[cellIndex]
			raw := ""
			if cellIndex < len(row) {
				raw = strings.TrimSpace(row[cellIndex])
			}
			if tgt.discriminator {
				discriminatorValue = raw
				continue
			}
			value, err := coerceValue(tgt.field, raw)
			if err != nil {
				rowErr = fmt.Sprintf("column %s: %v", tgt.field.Name, err)
				break
			}
			if value != nil {
				fields[tgt.field.Name] = value
			}
		}
		if rowErr != "" {
			result.RowErrors = append(result.RowErrors, RowError{Row: rowNumber, Message: rowErr})
			continue
		}

		rec := domain.NewRecord(fields)
		rec.Type = discriminatorValue
		if err := s.saver.Save(ctx, &rec); err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: rowNumber, Message: err.Error()})
			continue
		}
		result.Imported++
	}
	return result, nil
}

func readTable(fileName string, data io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return readCSV(data)
	case ".xlsx":
		return readXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
}

func readCSV(data io.Reader) ([][]string, error) {
	buffered := bufio.NewReader(data)
	prefix, err := buffered.Peek(len(byteOrderMark))
	if err == nil && bytes.Equal(prefix, byteOrderMark) {
		if _, err := buffered.Discard(len(byteOrderMark)); err != nil {
			return nil, fmt.Errorf("strip byte order mark: %w", err)
		}
	}
	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	return rows, nil
}

func readXLSX(data io.Reader) ([][]string, error) {
	workbook, err := excelize.OpenReader(data)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = workbook.Close()
	}()
	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// normalizeHeader maps a header cell onto a column name: lower case, spaces
// to underscores, everything else stripped.
func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "_")
	value = headerSanitizer.ReplaceAllString(value, "")
	return strings.Trim(value, "_")
}

// coerceValue parses a raw cell into the column's storage type. Empty cells
// become nil.
func coerceValue(field domain.FieldDefinition, raw string) (any, error) {
	if raw == "" {
		if field.Required {
			return nil, errors.New("required value is empty")
		}
		return nil, nil
	}
	switch field.Type {
	case domain.FieldTypeText, domain.FieldTypeVarchar:
		return raw, nil
	case domain.FieldTypeInteger, domain.FieldTypeBigint:
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		return parsed, nil
	case domain.FieldTypeFloat, domain.FieldTypeNumeric:
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", raw)
		}
		return parsed, nil
	case domain.FieldTypeBoolean:
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", raw)
		}
		return parsed, nil
	case domain.FieldTypeTimestamp:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), nil
			}
		}
		return nil, fmt.Errorf("not a timestamp: %q", raw)
	case domain.FieldTypeJSON:
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("not valid JSON: %q", raw)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", field.Type)
	}
}
