package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"billocr/pkg/bill"
	"billocr/pkg/ocr"
)

// scriptedRecognizer returns the same text for every configuration.
type scriptedRecognizer struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (s *scriptedRecognizer) Recognize(_ context.Context, _ image.Image, _ ocr.Config) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, nil
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

// sharpPage alternates 2px black and white blocks, which scores far above 500.
func sharpPage() image.Image {
	img := imaging.New(40, 40, color.White)
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x/2+y/2)%2 == 0 {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestProcessCleanElectricBill(t *testing.T) {
	rec := &scriptedRecognizer{text: "CÔNG TY ĐIỆN LỰC HÀ NỘI\nMã số thuế: 0100100079\nTổng cộng tiền thanh toán: 523.000"}
	o := NewWithRecognizer(rec, Options{}, zerolog.Nop())

	out, err := o.Run(context.Background(), encode(t, sharpPage()), bill.Electric)
	require.NoError(t, err)

	r := out.Record
	require.Equal(t, 1, r.PreprocessingLevel())
	require.Equal(t, ocr.LabelExcellent, out.QualityLabel)
	require.Equal(t, bill.Electric, r.Type())
	require.Equal(t, "psm6", r.OCRConfigUsed())
	require.Greater(t, r.ConfidenceScore(), 0.0)
	require.Equal(t, 3, rec.calls)

	name, ok := r.Get(bill.CompanyName)
	require.True(t, ok)
	require.Contains(t, name, "HÀ NỘI")
	tax, _ := r.Get(bill.CompanyTaxCode)
	require.Equal(t, "0100100079", tax)
	total, _ := r.Get(bill.TotalAmount)
	require.Equal(t, "523.000", total)
}

func TestProcessBlankImage(t *testing.T) {
	o := NewWithRecognizer(&scriptedRecognizer{}, Options{}, zerolog.Nop())

	r, err := o.Process(context.Background(), encode(t, imaging.New(30, 30, color.White)), bill.Water)
	require.NoError(t, err)
	require.Equal(t, 0.0, r.ConfidenceScore())
	require.Equal(t, ocr.NoConfig, r.OCRConfigUsed())
	require.Equal(t, 3, r.PreprocessingLevel())
	require.Zero(t, r.Found())
	require.Empty(t, r.RawText())
}

func TestProcessCorrectsBeforeExtracting(t *testing.T) {
	rec := &scriptedRecognizer{text: "so hoa don 1234567 Tong cong tien thanh toan: 99.000 VND cong ty"}
	o := NewWithRecognizer(rec, Options{}, zerolog.Nop())

	r, err := o.Process(context.Background(), encode(t, sharpPage()), bill.Electric)
	require.NoError(t, err)
	require.Contains(t, r.CorrectedText(), "hóa đơn")
	require.Contains(t, r.RawText(), "hoa don")
}

func TestProcessRejectsInput(t *testing.T) {
	o := NewWithRecognizer(&scriptedRecognizer{}, Options{}, zerolog.Nop())

	_, err := o.Process(context.Background(), encode(t, sharpPage()), bill.Type("gas"))
	require.ErrorIs(t, err, bill.ErrUnsupportedBillType)

	_, err = o.Process(context.Background(), []byte("not an image"), bill.Electric)
	require.ErrorIs(t, err, ocr.ErrDecodeImage)
}

func TestProcessTruncatesText(t *testing.T) {
	long := strings.Repeat("điện ", 1500)
	o := NewWithRecognizer(&scriptedRecognizer{text: long}, Options{}, zerolog.Nop())

	r, err := o.Process(context.Background(), encode(t, sharpPage()), bill.Electric)
	require.NoError(t, err)
	require.Equal(t, MaxTextLength, utf8.RuneCountInString(r.RawText()))
	require.LessOrEqual(t, utf8.RuneCountInString(r.CorrectedText()), MaxTextLength)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "đi", truncate("điện", 2))
	require.Equal(t, "", truncate("x", 0))
}
