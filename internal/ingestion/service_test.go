package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/pkg/fieldset"
)

type fakeSaver struct {
	def    domain.Definition
	saved  []domain.Record
	reject bool
}

func (f *fakeSaver) Definition() domain.Definition {
	return f.def
}

func (f *fakeSaver) VersionedColumns() []domain.FieldDefinition {
	return fieldset.VersionedColumns(f.def)
}

func (f *fakeSaver) Save(_ context.Context, rec *domain.Record) error {
	if f.reject {
		return errors.New("save refused")
	}
	rec.Version = 1
	f.saved = append(f.saved, *rec)
	return nil
}

func newSaver(t *testing.T) *fakeSaver {
	t.Helper()
	def, err := domain.Definition{
		Table:         "pages",
		Discriminator: "record_type",
		Fields: []domain.FieldDefinition{
			{Name: "title", Type: domain.FieldTypeText, Required: true},
			{Name: "views", Type: domain.FieldTypeInteger},
			{Name: "published", Type: domain.FieldTypeBoolean},
		},
	}.Normalize()
	if err != nil {
		t.Fatalf("definition failed to normalize: %v", err)
	}
	return &fakeSaver{def: def}
}

func TestImportCSV(t *testing.T) {
	saver := newSaver(t)
	service := NewService(saver)

	data := strings.NewReader("Title,Views,Published,Record Type,Ignored\nfirst,10,true,Page,zzz\nsecond,3,false,Page,zzz\n")
	result, err := service.Import(context.Background(), "pages.csv", data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TotalRows != 2 || result.Imported != 2 || len(result.RowErrors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.SkippedColumns) != 1 || result.SkippedColumns[0] != "ignored" {
		t.Errorf("expected the unknown column to be skipped, got %v", result.SkippedColumns)
	}
	if len(saver.saved) != 2 {
		t.Fatalf("expected 2 saved records, got %d", len(saver.saved))
	}
	first := saver.saved[0]
	if first.Fields["title"] != "first" || first.Fields["views"] != int64(10) || first.Fields["published"] != true {
		t.Errorf("coerced fields mismatch: %v", first.Fields)
	}
	if first.Type != "Page" {
		t.Errorf("discriminator not imported: %q", first.Type)
	}
}

func TestImportCSVStripsByteOrderMark(t *testing.T) {
	saver := newSaver(t)
	service := NewService(saver)

	data := strings.NewReader("\xEF\xBB\xBFtitle\nonly\n")
	result, err := service.Import(context.Background(), "pages.csv", data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected 1 imported row, got %+v", result)
	}
}

func TestImportXLSX(t *testing.T) {
	saver := newSaver(t)
	service := NewService(saver)

	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	rows := [][]any{
		{"title", "views"},
		{"from-sheet", 42},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("address cell: %v", err)
		}
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("write sheet row: %v", err)
		}
	}
	var buffer bytes.Buffer
	if err := workbook.Write(&buffer); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	result, err := service.Import(context.Background(), "pages.xlsx", &buffer)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected 1 imported row, got %+v", result)
	}
	if saver.saved[0].Fields["views"] != int64(42) {
		t.Errorf("integer not coerced: %v", saver.saved[0].Fields)
	}
}

func TestImportReportsBadRowsAndKeepsGoing(t *testing.T) {
	saver := newSaver(t)
	service := NewService(saver)

	data := strings.NewReader("title,views\nok,1\nbad,not-a-number\n,2\nlast,3\n")
	result, err := service.Import(context.Background(), "pages.csv", data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("expected 2 imported rows, got %d", result.Imported)
	}
	if len(result.RowErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %+v", result.RowErrors)
	}
	if result.RowErrors[0].Row != 3 {
		t.Errorf("row numbers must count the header, got %d", result.RowErrors[0].Row)
	}
}

func TestImportReportsLeftmostBadColumn(t *testing.T) {
	saver := newSaver(t)
	service := NewService(saver)

	// Both cells are bad; the reported column must always be the leftmost.
	for i := 0; i < 5; i++ {
		data := strings.NewReader("views,published\nnot-a-number,not-a-bool\n")
		result, err := service.Import(context.Background(), "pages.csv", data)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if len(result.RowErrors) != 1 {
			t.Fatalf("expected 1 row error, got %+v", result.RowErrors)
		}
		if !strings.Contains(result.RowErrors[0].Message, "column views") {
			t.Fatalf("expected the leftmost column in the error, got %q", result.RowErrors[0].Message)
		}
	}
}

func TestImportRejectsUnsupportedFormat(t *testing.T) {
	service := NewService(newSaver(t))
	_, err := service.Import(context.Background(), "pages.pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestImportRequiresMatchingHeader(t *testing.T) {
	service := NewService(newSaver(t))
	_, err := service.Import(context.Background(), "pages.csv", strings.NewReader("nothing,matches\n1,2\n"))
	if err == nil {
		t.Fatalf("headers with no versioned column must fail")
	}
}
