package ocr

import (
	"image"
	"image/color"
	"testing"
)

// impulseImage places n isolated pixels of value v on a black 100x100 canvas. Each interior
// impulse contributes 20*v^2 to the Laplacian's sum of squares, so the score is 20*n*v^2/10000.
func impulseImage(n int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 100, 100))
	placed := 0
	for y := 5; y < 95 && placed < n; y += 6 {
		for x := 5; x < 95 && placed < n; x += 6 {
			g.SetGray(x, y, color.Gray{Y: v})
			placed++
		}
	}
	return g
}

func TestAssessLabels(t *testing.T) {
	cases := []struct {
		impulses int
		score    float64
		label    string
	}{
		{60, 1200, LabelExcellent},
		{15, 300, LabelGood},
		{8, 160, LabelFair},
		{2, 40, LabelPoor},
		{0, 0, LabelPoor},
	}
	for _, tc := range cases {
		score, label := Assess(impulseImage(tc.impulses, 100))
		if score < tc.score-1e-6 || score > tc.score+1e-6 {
			t.Fatalf("impulses=%d: expected score %.1f got %.4f", tc.impulses, tc.score, score)
		}
		if label != tc.label {
			t.Fatalf("impulses=%d: expected %s got %s", tc.impulses, tc.label, label)
		}
	}
}

func TestQualityLabelBreakpoints(t *testing.T) {
	cases := map[float64]string{
		500.01: LabelExcellent,
		500:    LabelGood,
		200.01: LabelGood,
		200:    LabelFair,
		100.01: LabelFair,
		100:    LabelPoor,
		-1:     LabelPoor,
	}
	for score, want := range cases {
		if got := QualityLabel(score); got != want {
			t.Fatalf("score %.2f: expected %s got %s", score, want, got)
		}
	}
}

func TestAssessColorInput(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{A: 255})
			}
		}
	}
	score, label := Assess(img)
	if label != LabelExcellent {
		t.Fatalf("checkerboard should be sharp, got %s (%.1f)", label, score)
	}
}
