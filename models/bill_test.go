package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"billocr/pkg/bill"
)

func TestBillRecordRoundTrip(t *testing.T) {
	rec := bill.NewRecord(bill.Meta{
		Type:               bill.Electric,
		ConfidenceScore:    0.64,
		PreprocessingLevel: 2,
		OCRConfigUsed:      "psm3",
		RawText:            "raw",
		CorrectedText:      "fixed",
	}, map[bill.Field]string{bill.InvoiceNumber: "0012345"})

	var b Bill
	b.SetRecord(rec)
	require.Equal(t, "electric", b.BillType)
	require.Equal(t, FieldValues{"invoice_number": "0012345"}, b.Fields)

	v, err := b.Fields.Value()
	require.NoError(t, err)
	var scanned FieldValues
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	b.Fields = scanned
	b.Fields["legacy_key"] = "dropped"

	got := b.Record()
	require.Equal(t, rec.Meta(), got.Meta())
	require.Equal(t, rec.Values(), got.Values())
	require.Equal(t, "0012345", b.Field(bill.InvoiceNumber))
	require.Equal(t, NotAvailable, b.Field(bill.CustomerName))
}

func TestFieldValuesScanNil(t *testing.T) {
	var v FieldValues
	require.NoError(t, v.Scan(nil))
	require.NotNil(t, v)
	require.Error(t, v.Scan(42))
}

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Now()
	require.True(t, RefreshToken{ExpiresAt: now.Add(time.Hour)}.Usable(now))
	require.False(t, RefreshToken{ExpiresAt: now.Add(-time.Second)}.Usable(now))
	require.False(t, RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}.Usable(now))
}
