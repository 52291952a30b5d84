package bill

import (
	"bytes"
	"encoding/json"
)

// Meta is the processing metadata carried by a Record.
type Meta struct {
	Type               Type
	ConfidenceScore    float64
	PreprocessingLevel int
	OCRConfigUsed      string
	RawText            string
	CorrectedText      string
}

// Record is the structured result of processing one bill image. It cannot be changed
// once built; every accessor returns a copy.
type Record struct {
	meta   Meta
	values map[Field]string
}

// NewRecord builds a record from meta and the extracted values. Empty values are dropped
// and the map is copied.
func NewRecord(meta Meta, values map[Field]string) Record {
	cp := make(map[Field]string, len(values))
	for k, v := range values {
		if v != "" {
			cp[k] = v
		}
	}
	return Record{meta: meta, values: cp}
}

func (r Record) Meta() Meta { return r.meta }
func (r Record) Type() Type { return r.meta.Type }
func (r Record) ConfidenceScore() float64 { return r.meta.ConfidenceScore }
func (r Record) PreprocessingLevel() int { return r.meta.PreprocessingLevel }
func (r Record) OCRConfigUsed() string { return r.meta.OCRConfigUsed }
func (r Record) RawText() string { return r.meta.RawText }
func (r Record) CorrectedText() string { return r.meta.CorrectedText }

// Get returns the value of f and whether it was extracted.
func (r Record) Get(f Field) (string, bool) {
	v, ok := r.values[f]
	return v, ok
}

// Values returns a copy of the extracted fields.
func (r Record) Values() map[Field]string {
	out := make(map[Field]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Found reports how many semantic fields were extracted.
func (r Record) Found() int { return len(r.values) }

// Pair is one key/value of the flattened record. Value is nil for absent fields.
type Pair struct {
	Key   string
	Value any
}

// Pairs flattens the record in column order: metadata, semantic fields, then text.
func (r Record) Pairs() []Pair {
	out := make([]Pair, 0, len(Fields)+6)
	out = append(out,
		Pair{"bill_type", string(r.meta.Type)},
		Pair{"confidence_score", r.meta.ConfidenceScore},
		Pair{"preprocessing_level", r.meta.PreprocessingLevel},
		Pair{"ocr_config_used", r.meta.OCRConfigUsed},
	)
	for _, f := range Fields {
		var v any
		if s, ok := r.values[f]; ok {
			v = s
		}
		out = append(out, Pair{string(f), v})
	}
	out = append(out,
		Pair{"ocr_raw_text", r.meta.RawText},
		Pair{"ocr_corrected_text", r.meta.CorrectedText},
	)
	return out
}

// MarshalJSON writes the flattened record with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range r.Pairs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.Key)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
