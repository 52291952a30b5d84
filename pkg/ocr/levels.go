package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// Level is the conditioning strategy applied before recognition.
type Level int

const (
	LevelLight      Level = 1
	LevelMedium     Level = 2
	LevelAggressive Level = 3
)

// Strategy selection thresholds on the quality score. They are coarser than the quality
// labels: anything below Good goes to the aggressive path.
const (
	lightAbove  = 500.0
	mediumAbove = 100.0
)

// LevelForScore picks the conditioning level for a quality score.
func LevelForScore(score float64) Level {
	switch {
	case score > lightAbove:
		return LevelLight
	case score > mediumAbove:
		return LevelMedium
	default:
		return LevelAggressive
	}
}

// Conditioned is a preprocessed image ready for recognition.
type Conditioned struct {
	Image        *image.Gray
	Level        Level
	QualityScore float64
	QualityLabel string
	// Rotation is the deskew correction in degrees, zero unless level 3 rotated the page.
	Rotation float64
}

// PreprocessOptions tunes the AdaptivePreprocessor.
type PreprocessOptions struct {
	// MaxPixels rejects images whose decoded size exceeds it. Zero disables the check.
	MaxPixels int
}

// Preprocessor decodes bill photos and conditions them according to their sharpness.
type Preprocessor struct {
	opts PreprocessOptions
	log  zerolog.Logger
}

func NewPreprocessor(opts PreprocessOptions, log zerolog.Logger) *Preprocessor {
	return &Preprocessor{opts: opts, log: log}
}

// Decode turns raw bytes into an image, honouring EXIF orientation. Images larger than
// maxPixels are rejected from their header, before any pixel is decoded.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeImage, cfg.Width, cfg.Height, maxPixels)
		}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// Preprocess decodes data, assesses its quality and applies exactly one conditioning level.
func (p *Preprocessor) Preprocess(data []byte) (Conditioned, error) {
	img, err := Decode(data, p.opts.MaxPixels)
	if err != nil {
		return Conditioned{}, err
	}
	return p.Condition(img), nil
}

// Condition assesses img and applies the level chosen for its score.
func (p *Preprocessor) Condition(img image.Image) Conditioned {
	score, label := Assess(img)
	level := LevelForScore(score)
	p.log.Debug().
		Float64("quality_score", score).
		Str("quality_label", label).
		Int("level", int(level)).
		Msg("image assessed")

	c := Conditioned{Level: level, QualityScore: score, QualityLabel: label}
	switch level {
	case LevelLight:
		c.Image = p.light(img)
	case LevelMedium:
		c.Image = p.medium(img)
	default:
		c.Image, c.Rotation = p.aggressive(img)
	}
	return c
}

// light: 1.5x upscale, grayscale, Otsu.
func (p *Preprocessor) light(img image.Image) *image.Gray {
	g := scaleGray(img, 1.5)
	return otsuBinarize(g)
}

// medium: 2x upscale, grayscale, NLM (h=10), CLAHE (2.0, 8x8), adaptive threshold, sharpen 1.5.
func (p *Preprocessor) medium(img image.Image) *image.Gray {
	g := scaleGray(img, 2)
	g = denoise(g, 10)
	g = clahe(g, 2.0, 8, 8)
	g = adaptiveThreshold(g, 11, 2)
	return sharpen(g, 1.5)
}

// aggressive: 3x upscale, grayscale, NLM (h=15), closing, CLAHE (3.0, 8x8), Otsu, deskew, sharpen 2.0.
func (p *Preprocessor) aggressive(img image.Image) (*image.Gray, float64) {
	g := scaleGray(img, 3)
	g = denoise(g, 15)
	g = morphClose(g)
	g = clahe(g, 3.0, 8, 8)
	g = otsuBinarize(g)
	g, angle := deskew(g)
	if angle != 0 {
		p.log.Debug().Float64("angle", angle).Msg("deskewed")
	}
	return sharpen(g, 2.0), angle
}
