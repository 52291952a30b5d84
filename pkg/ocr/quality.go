package ocr

import "image"

// Quality breakpoints on the Laplacian variance.
const (
	ExcellentAbove = 500.0
	GoodAbove      = 200.0
	FairAbove      = 100.0
)

// Quality labels.
const (
	LabelExcellent = "Excellent"
	LabelGood      = "Good"
	LabelFair      = "Fair"
	LabelPoor      = "Poor"
)

// Assess scores img for sharpness using the variance of its Laplacian and classifies it.
func Assess(img image.Image) (float64, string) {
	score := laplacianVariance(toGray(img))
	return score, QualityLabel(score)
}

// QualityLabel maps a sharpness score to its label.
func QualityLabel(score float64) string {
	switch {
	case score > ExcellentAbove:
		return LabelExcellent
	case score > GoodAbove:
		return LabelGood
	case score > FairAbove:
		return LabelFair
	default:
		return LabelPoor
	}
}

// laplacianVariance convolves g with the 4-neighbour Laplacian kernel, borders reflected
// without repeating the edge pixel, and returns the population variance of the response.
func laplacianVariance(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	at := func(x, y int) float64 {
		x = reflect101(x, w)
		y = reflect101(y, h)
		return float64(g.Pix[y*g.Stride+x])
	}
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	return sumSq/n - mean*mean
}

// reflect101 maps an out of range index back inside [0,n) mirroring around the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
