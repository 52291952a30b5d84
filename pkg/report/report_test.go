package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"billocr/pkg/bill"
)

func sampleRecord() bill.Record {
	return bill.NewRecord(bill.Meta{
		Type:               bill.Water,
		ConfidenceScore:    0.81,
		PreprocessingLevel: 2,
		OCRConfigUsed:      "psm4",
		RawText:            "raw",
		CorrectedText:      "corrected",
	}, map[bill.Field]string{
		bill.CustomerName: "Nguyễn Văn A",
		bill.TotalAmount:  "120.000",
	})
}

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRecordWorkbook(t *testing.T) {
	t.Parallel()
	data, err := RecordWorkbook(sampleRecord())
	require.NoError(t, err)

	f := open(t, data)
	require.Equal(t, []string{RecordSheet}, f.GetSheetList())

	rows, err := f.GetRows(RecordSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "bill_type", rows[0][0])
	require.Equal(t, "ocr_corrected_text", rows[0][len(rows[0])-1])
	require.Len(t, rows[0], len(bill.Fields)+6)

	col := make(map[string]string)
	for i, k := range rows[0] {
		if i < len(rows[1]) {
			col[k] = rows[1][i]
		}
	}
	require.Equal(t, "water", col["bill_type"])
	require.Equal(t, "psm4", col["ocr_config_used"])
	require.Equal(t, "Nguyễn Văn A", col["customer_name"])
	require.Equal(t, "120.000", col["total_amount"])
	require.Empty(t, col["company_name"])
}

func TestExportWorkbook(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 4, 5, 10, 30, 0, 0, time.UTC)
	data, err := ExportWorkbook([]Entry{
		{ID: 7, FileName: "a.jpg", CreatedAt: at, Record: sampleRecord()},
		{ID: 8, FileName: "b.png", CreatedAt: at, Record: bill.NewRecord(bill.Meta{Type: bill.Electric, OCRConfigUsed: "none"}, nil)},
	})
	require.NoError(t, err)

	f := open(t, data)
	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"id", "file_name", "created_at", "bill_type"}, rows[0][:4])
	require.Equal(t, []string{"7", "a.jpg", "2024-04-05 10:30:00", "water"}, rows[1][:4])
	require.Equal(t, "electric", rows[2][3])

	panes, err := f.GetPanes(ExportSheet)
	require.NoError(t, err)
	require.True(t, panes.Freeze)
	require.Equal(t, 1, panes.YSplit)
}

func TestName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "hoa_don_result.xlsx", Name("hoa_don.jpg"))
	require.Equal(t, "scan.v2_result.xlsx", Name("dir/scan.v2.png"))
	require.Equal(t, "noext_result.xlsx", Name("noext"))
}
