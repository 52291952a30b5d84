package ocr

import (
	"image"

	"github.com/disintegration/imaging"
)

// toGray converts img to an 8-bit single channel image anchored at the origin.
// Luma uses the Rec.601 weights applied by imaging.Grayscale.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	n := imaging.Grayscale(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := n.Pix[y*n.Stride : y*n.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// scaleGray resizes img by factor with Catmull-Rom (bicubic) interpolation and converts it to gray.
func scaleGray(img image.Image, factor float64) *image.Gray {
	b := img.Bounds()
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return toGray(imaging.Resize(img, w, h, imaging.CatmullRom))
}

// binarize performs a global threshold: pixels above threshold become white.
func binarize(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// otsuThreshold returns the threshold maximising between-class variance of g's histogram.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 0
	}
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}
	var (
		sumB   float64
		wB     int
		best   float64
		thresh int
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			thresh = t
		}
	}
	return uint8(thresh)
}

// otsuBinarize binarizes g at its Otsu threshold.
func otsuBinarize(g *image.Gray) *image.Gray {
	return binarize(g, otsuThreshold(g))
}

// adaptiveThreshold compares every pixel to the mean of its window x window neighbourhood
// minus bias. Pixels above the local threshold become white. Sums come from an integral
// image so the cost does not depend on the window size.
func adaptiveThreshold(g *image.Gray, window int, bias int) *image.Gray {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	half := window / 2
	// ints has a zero row and column so lookups need no bounds special cases.
	iw := w + 1
	ints := make([]int, iw*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(g.Pix[y*g.Stride+x])
			ints[(y+1)*iw+x+1] = ints[y*iw+x+1] + rowSum
		}
	}
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := ints[(y1+1)*iw+x1+1] - ints[y0*iw+x1+1] - ints[(y1+1)*iw+x0] + ints[y0*iw+x0]
			area := (x1 - x0 + 1) * (y1 - y0 + 1)
			// compare pix*area to (mean-bias)*area to stay in integers
			if int(g.Pix[y*g.Stride+x])*area > sum-bias*area {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// morphClose applies a grayscale closing with a 2x2 structuring element: a max filter over
// the pixel and its up/left neighbours followed by a min filter over the pixel and its
// down/right neighbours, so the result is not shifted.
func morphClose(g *image.Gray) *image.Gray {
	return erode2(dilate2(g))
}

func dilate2(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			if x > 0 {
				v = max(v, g.Pix[y*g.Stride+x-1])
			}
			if y > 0 {
				v = max(v, g.Pix[(y-1)*g.Stride+x])
				if x > 0 {
					v = max(v, g.Pix[(y-1)*g.Stride+x-1])
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

func erode2(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			if x+1 < w {
				v = min(v, g.Pix[y*g.Stride+x+1])
			}
			if y+1 < h {
				v = min(v, g.Pix[(y+1)*g.Stride+x])
				if x+1 < w {
					v = min(v, g.Pix[(y+1)*g.Stride+x+1])
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}
