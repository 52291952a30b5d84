package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"billocr/pkg/bill"
)

// NotAvailable is shown in listings for fields that were not extracted.
const NotAvailable = "N/A"

// FieldValues is the extracted field map stored as a JSON column.
type FieldValues map[string]string

func (v FieldValues) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *FieldValues) Scan(src any) error {
	var b []byte
	switch s := src.(type) {
	case nil:
		*v = FieldValues{}
		return nil
	case []byte:
		b = s
	case string:
		b = []byte(s)
	default:
		return fmt.Errorf("FieldValues: unsupported scan type %T", src)
	}
	out := FieldValues{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*v = out
	return nil
}

// Bill is a processed bill image together with its extracted record.
type Bill struct {
	ID                 uint `gorm:"primaryKey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	UserID             *uint       `gorm:"index"` // uploader, nil for batch imports
	FileName           string      `gorm:"size:255;not null"`
	FileKey            string      `gorm:"size:64;not null;uniqueIndex"`
	ContentType        string      `gorm:"size:128"`
	ReportKey          string      `gorm:"size:64"`
	BillType           string      `gorm:"size:16;index;not null"`
	ConfidenceScore    float64     `gorm:"not null;default:0"`
	PreprocessingLevel int         `gorm:"not null;default:0"`
	OCRConfigUsed      string      `gorm:"column:ocr_config_used;size:16"`
	QualityLabel       string      `gorm:"size:16"`
	Fields             FieldValues `gorm:"type:jsonb;not null;default:'{}'"`
	RawText            string      `gorm:"type:text"`
	CorrectedText      string      `gorm:"type:text"`
}

// SetRecord copies the result columns of rec onto b.
func (b *Bill) SetRecord(rec bill.Record) {
	m := rec.Meta()
	b.BillType = string(m.Type)
	b.ConfidenceScore = m.ConfidenceScore
	b.PreprocessingLevel = m.PreprocessingLevel
	b.OCRConfigUsed = m.OCRConfigUsed
	b.RawText = m.RawText
	b.CorrectedText = m.CorrectedText
	b.Fields = FieldValues{}
	for f, v := range rec.Values() {
		b.Fields[string(f)] = v
	}
}

// Record rebuilds the extraction record stored on b. Unknown field keys are ignored.
func (b Bill) Record() bill.Record {
	values := make(map[bill.Field]string, len(b.Fields))
	for _, f := range bill.Fields {
		if v, ok := b.Fields[string(f)]; ok {
			values[f] = v
		}
	}
	return bill.NewRecord(bill.Meta{
		Type:               bill.Type(b.BillType),
		ConfidenceScore:    b.ConfidenceScore,
		PreprocessingLevel: b.PreprocessingLevel,
		OCRConfigUsed:      b.OCRConfigUsed,
		RawText:            b.RawText,
		CorrectedText:      b.CorrectedText,
	}, values)
}

// Field returns the extracted value of f or NotAvailable.
func (b Bill) Field(f bill.Field) string {
	if v := b.Fields[string(f)]; v != "" {
		return v
	}
	return NotAvailable
}
