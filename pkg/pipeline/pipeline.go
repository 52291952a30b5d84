// Package pipeline wires the bill reading stages into a single call.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"billocr/pkg/bill"
	"billocr/pkg/fields"
	"billocr/pkg/ocr"
)

// MaxTextLength bounds the raw and corrected text kept on a record, in characters.
const MaxTextLength = 5000

// Options configures NewDefault.
type Options struct {
	Language       string
	TessdataPrefix string
	// ConfigTimeout bounds each recognition configuration; zero leaves only the caller's context.
	ConfigTimeout time.Duration
	MaxPixels     int
}

// Outcome is a record plus the quality assessment that drove preprocessing.
type Outcome struct {
	Record       bill.Record
	QualityScore float64
	QualityLabel string
}

// Orchestrator runs preprocess, recognize, correct and extract in order for one image.
// Instances hold no per-call state and can be shared between goroutines.
type Orchestrator struct {
	pre *ocr.Preprocessor
	sel *ocr.Selector
	cor *ocr.Corrector
	ext *fields.Extractor
	log zerolog.Logger
}

func New(pre *ocr.Preprocessor, sel *ocr.Selector, cor *ocr.Corrector, ext *fields.Extractor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{pre: pre, sel: sel, cor: cor, ext: ext, log: log}
}

// NewDefault builds an orchestrator backed by Tesseract with the stock configurations,
// replacement table and schemas.
func NewDefault(opts Options, log zerolog.Logger) *Orchestrator {
	return NewWithRecognizer(ocr.NewTesseract(ocr.TesseractOptions{
		Language:       opts.Language,
		TessdataPrefix: opts.TessdataPrefix,
	}), opts, log)
}

// NewWithRecognizer is NewDefault with a caller supplied recognizer.
func NewWithRecognizer(rec ocr.Recognizer, opts Options, log zerolog.Logger) *Orchestrator {
	return New(
		ocr.NewPreprocessor(ocr.PreprocessOptions{MaxPixels: opts.MaxPixels}, log),
		ocr.NewSelector(rec, ocr.DefaultConfigs(), opts.ConfigTimeout, log),
		ocr.NewCorrector(ocr.DefaultReplacements),
		fields.NewExtractor(),
		log,
	)
}

// Supports reports whether t has an extraction schema.
func (o *Orchestrator) Supports(t bill.Type) bool { return o.ext.Supports(t) }

// Process reads one bill image. It fails only for an unsupported type or undecodable data;
// recognition trouble yields a low-confidence record instead.
func (o *Orchestrator) Process(ctx context.Context, data []byte, t bill.Type) (bill.Record, error) {
	out, err := o.Run(ctx, data, t)
	return out.Record, err
}

// Run is Process that also reports the quality assessment.
func (o *Orchestrator) Run(ctx context.Context, data []byte, t bill.Type) (Outcome, error) {
	if !o.ext.Supports(t) {
		return Outcome{}, fmt.Errorf("%w: %q", bill.ErrUnsupportedBillType, t)
	}
	start := time.Now()

	cond, err := o.pre.Preprocess(data)
	if err != nil {
		return Outcome{}, err
	}
	o.log.Debug().
		Int("level", int(cond.Level)).
		Float64("rotation", cond.Rotation).
		Int("width", cond.Image.Bounds().Dx()).
		Int("height", cond.Image.Bounds().Dy()).
		Msg("preprocessed")

	res := o.sel.Recognize(ctx, cond.Image)
	o.log.Debug().Str("config", res.Config).Float64("confidence", res.Confidence).Msg("recognized")

	corrected := o.cor.Correct(res.Text)

	values, err := o.ext.Extract(corrected, t)
	if err != nil {
		return Outcome{}, err
	}

	rec := bill.NewRecord(bill.Meta{
		Type:               t,
		ConfidenceScore:    res.Confidence,
		PreprocessingLevel: int(cond.Level),
		OCRConfigUsed:      res.Config,
		RawText:            truncate(res.Text, MaxTextLength),
		CorrectedText:      truncate(corrected, MaxTextLength),
	}, values)

	o.log.Info().
		Str("bill_type", string(t)).
		Int("found", rec.Found()).
		Int("total", len(o.ext.Fields(t))).
		Str("config", res.Config).
		Float64("confidence", res.Confidence).
		Dur("took", time.Since(start)).
		Msg("bill processed")

	return Outcome{Record: rec, QualityScore: cond.QualityScore, QualityLabel: cond.QualityLabel}, nil
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
