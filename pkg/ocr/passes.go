package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// NoConfig is reported when no configuration produced text.
const NoConfig = "none"

// Result is the recognition output chosen by a Selector.
type Result struct {
	Text       string
	Config     string
	Confidence float64
}

// Selector runs every configuration against an image and keeps the highest scoring text.
type Selector struct {
	rec     Recognizer
	configs []Config
	timeout time.Duration
	log     zerolog.Logger
}

// NewSelector builds a Selector. timeout bounds each configuration; zero means only the
// caller's context applies.
func NewSelector(rec Recognizer, configs []Config, timeout time.Duration, log zerolog.Logger) *Selector {
	cp := make([]Config, len(configs))
	copy(cp, configs)
	return &Selector{rec: rec, configs: cp, timeout: timeout, log: log}
}

// Recognize tries all configurations in order. Failed attempts are skipped; the first
// configuration wins ties. When nothing succeeds the result is empty with NoConfig.
func (s *Selector) Recognize(ctx context.Context, img image.Image) Result {
	best := Result{Config: NoConfig}
	found := false
	for _, cfg := range s.configs {
		text, err := s.attempt(ctx, img, cfg)
		if err != nil {
			s.log.Warn().Err(err).Str("config", cfg.Name).Msg("recognition attempt skipped")
			continue
		}
		conf := EstimateConfidence(text)
		s.log.Debug().
			Str("config", cfg.Name).
			Int("chars", utf8.RuneCountInString(text)).
			Float64("confidence", conf).
			Str("text", snippet(text, 60)).
			Msg("recognition attempt")
		if !found || conf > best.Confidence {
			best = Result{Text: text, Config: cfg.Name, Confidence: conf}
			found = true
		}
	}
	s.log.Debug().Str("config", best.Config).Float64("confidence", best.Confidence).Msg("recognition selected")
	return best
}

func (s *Selector) attempt(ctx context.Context, img image.Image, cfg Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.rec.Recognize(ctx, img, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRecognition, cfg.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: empty output", ErrRecognition, cfg.Name)
	}
	return text, nil
}
