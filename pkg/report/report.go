// Package report renders bill records as xlsx workbooks.
package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"billocr/pkg/bill"
)

const (
	RecordSheet = "Bill Data"
	ExportSheet = "Bills"
)

// Entry is one stored bill in a multi-row export.
type Entry struct {
	ID        uint
	FileName  string
	CreatedAt time.Time
	Record    bill.Record
}

// Name returns the report file name for an uploaded image, <stem>_result.xlsx.
func Name(fileName string) string {
	base := filepath.Base(fileName)
	if base == "." || base == string(filepath.Separator) {
		base = "bill"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_result.xlsx"
}

// RecordWorkbook builds a single-row sheet whose header is the record's column order.
func RecordWorkbook(rec bill.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := useSheet(f, RecordSheet); err != nil {
		return nil, err
	}

	pairs := rec.Pairs()
	header := make([]any, len(pairs))
	values := make([]any, len(pairs))
	for i, p := range pairs {
		header[i] = p.Key
		values[i] = p.Value
	}
	if err := f.SetSheetRow(RecordSheet, "A1", &header); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(RecordSheet, "A2", &values); err != nil {
		return nil, err
	}
	return write(f)
}

// ExportWorkbook builds one row per entry with a frozen header row.
func ExportWorkbook(entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := useSheet(f, ExportSheet); err != nil {
		return nil, err
	}

	header := []any{"id", "file_name", "created_at"}
	for _, p := range (bill.Record{}).Pairs() {
		header = append(header, p.Key)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, e := range entries {
		row := []any{e.ID, e.FileName, e.CreatedAt.UTC().Format(time.DateTime)}
		for _, p := range e.Record.Pairs() {
			row = append(row, p.Value)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(ExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(ExportSheet, "B", "B", 28)
	_ = f.SetColWidth(ExportSheet, "C", "C", 20)
	return write(f)
}

// useSheet renames the default sheet so the workbook has exactly one.
func useSheet(f *excelize.File, name string) error {
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

func write(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
