package ocr

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EstimateConfidence scores recognized text in [0,1].
//
// Under 10 characters scores 0. Under 5 tokens scores a flat 0.2. Otherwise the score is
// 0.7 times the share of letters and digits among non-space characters plus 0.3 times the
// token count saturating at 50.
func EstimateConfidence(text string) float64 {
	if utf8.RuneCountInString(text) < 10 {
		return 0
	}
	tokens := len(strings.Fields(text))
	if tokens < 5 {
		return 0.2
	}
	valid, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			valid++
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(valid) / float64(total)
	words := math.Min(float64(tokens)/50, 1)
	return 0.7*ratio + 0.3*words
}
