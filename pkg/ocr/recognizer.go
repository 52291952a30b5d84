package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Recognizer turns a conditioned image into text under one configuration.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, cfg Config) (string, error)
}

// Config is one named recognition configuration.
type Config struct {
	Name        string
	PageSegMode gosseract.PageSegMode
	Variables   map[string]string
}

// DefaultConfigs returns the recognition configurations in selection order, from the most to
// the least structurally assumptive. The engine mode is left at Tesseract's default (OEM 3).
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:        "psm6",
			PageSegMode: gosseract.PSM_SINGLE_BLOCK,
			Variables:   map[string]string{"preserve_interword_spaces": "1"},
		},
		{
			Name:        "psm4",
			PageSegMode: gosseract.PSM_SINGLE_COLUMN,
			Variables:   map[string]string{"preserve_interword_spaces": "1"},
		},
		{
			Name:        "psm3",
			PageSegMode: gosseract.PSM_AUTO,
		},
	}
}

// TesseractOptions configures the gosseract backed recognizer.
type TesseractOptions struct {
	Language       string
	TessdataPrefix string
}

// Tesseract is a Recognizer backed by libtesseract. A fresh client is created per call so a
// single Tesseract value is safe for concurrent use.
type Tesseract struct {
	opts TesseractOptions
}

func NewTesseract(opts TesseractOptions) *Tesseract {
	if opts.Language == "" {
		opts.Language = "vie"
	}
	return &Tesseract{opts: opts}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, cfg Config) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	type result struct {
		text string
		err  error
	}
	// libtesseract cannot be interrupted; on cancellation the call finishes in the background
	done := make(chan result, 1)
	go func() {
		text, err := t.run(buf.Bytes(), cfg)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (t *Tesseract) run(png []byte, cfg Config) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if t.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataPrefix); err != nil {
			return "", fmt.Errorf("tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.opts.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(cfg.PageSegMode); err != nil {
		return "", fmt.Errorf("set psm: %w", err)
	}
	for k, v := range cfg.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return "", fmt.Errorf("set %s: %w", k, err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return client.Text()
}
