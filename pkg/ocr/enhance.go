package ocr

import (
	"image"
	"math"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// Non-local means window sizes. The search window is smaller than the usual 21x21 to keep
// the pure Go implementation affordable on upscaled photos.
const (
	nlmTemplateRadius = 1
	nlmSearchRadius   = 3
)

// denoise applies non-local means filtering with strength h. Every output pixel is the
// weighted mean of the pixels in its search window, weighted by how similar their
// surrounding patches are. Rows are processed in parallel bands.
func denoise(g *image.Gray, h float64) *image.Gray {
	w, ht := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	if w == 0 || ht == 0 {
		return out
	}
	patch := (2*nlmTemplateRadius + 1) * (2*nlmTemplateRadius + 1)
	// weight by mean squared patch distance, which lies in [0, 255^2]
	lut := make([]float64, 255*255+1)
	for d := range lut {
		lut[d] = math.Exp(-float64(d) / (h * h))
	}
	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), ht-1)
		return int(g.Pix[y*g.Stride+x])
	}

	bands := runtime.NumCPU()
	rows := (ht + bands - 1) / bands
	var eg errgroup.Group
	for y0 := 0; y0 < ht; y0 += rows {
		y0, y1 := y0, min(y0+rows, ht)
		eg.Go(func() error {
			for y := y0; y < y1; y++ {
				for x := 0; x < w; x++ {
					var sum, norm float64
					for sy := -nlmSearchRadius; sy <= nlmSearchRadius; sy++ {
						for sx := -nlmSearchRadius; sx <= nlmSearchRadius; sx++ {
							dist := 0
							for ty := -nlmTemplateRadius; ty <= nlmTemplateRadius; ty++ {
								for tx := -nlmTemplateRadius; tx <= nlmTemplateRadius; tx++ {
									d := at(x+tx, y+ty) - at(x+sx+tx, y+sy+ty)
									dist += d * d
								}
							}
							wt := lut[dist/patch]
							sum += wt * float64(at(x+sx, y+sy))
							norm += wt
						}
					}
					out.Pix[y*out.Stride+x] = clamp8(sum / norm)
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// clahe performs contrast limited adaptive histogram equalization over a tilesX x tilesY
// grid. Each tile's histogram is clipped at clipLimit times the mean bin height, the excess
// is spread over all bins, and pixels interpolate bilinearly between neighbouring tile maps.
func clahe(g *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	if w == 0 || h == 0 {
		return out
	}
	tileW := max((w+tilesX-1)/tilesX, 1)
	tileH := max((h+tilesY-1)/tilesY, 1)
	nx := (w + tileW - 1) / tileW
	ny := (h + tileH - 1) / tileH

	luts := make([][256]uint8, nx*ny)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[g.Pix[y*g.Stride+x]]++
				}
			}
			area := (x1 - x0) * (y1 - y0)
			clipHistogram(&hist, max(int(clipLimit*float64(area)/256), 1))
			lut := &luts[ty*nx+tx]
			cdf := 0
			for i := 0; i < 256; i++ {
				cdf += hist[i]
				lut[i] = clamp8(float64(cdf) * 255 / float64(area))
			}
		}
	}

	// tile coordinate of a pixel relative to tile centres
	coord := func(p, size, n int) (int, int, float64) {
		f := (float64(p)+0.5)/float64(size) - 0.5
		i0 := int(math.Floor(f))
		a := f - float64(i0)
		i1 := i0 + 1
		i0 = min(max(i0, 0), n-1)
		i1 = min(max(i1, 0), n-1)
		return i0, i1, a
	}
	for y := 0; y < h; y++ {
		ty0, ty1, ay := coord(y, tileH, ny)
		for x := 0; x < w; x++ {
			tx0, tx1, ax := coord(x, tileW, nx)
			v := g.Pix[y*g.Stride+x]
			top := (1-ax)*float64(luts[ty0*nx+tx0][v]) + ax*float64(luts[ty0*nx+tx1][v])
			bot := (1-ax)*float64(luts[ty1*nx+tx0][v]) + ax*float64(luts[ty1*nx+tx1][v])
			out.Pix[y*out.Stride+x] = clamp8((1-ay)*top + ay*bot)
		}
	}
	return out
}

func clipHistogram(hist *[256]int, limit int) {
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	bonus, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += bonus
		if i < rest {
			hist[i]++
		}
	}
}

// smoothKernel is the 3x3 smoothing filter used as the blur reference for sharpening.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// sharpen extrapolates g away from a smoothed copy of itself. factor 1 returns the input
// unchanged; larger factors sharpen more.
func sharpen(g *image.Gray, factor float64) *image.Gray {
	smooth := imaging.Convolve3x3(g, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	out := image.NewGray(g.Rect)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			orig := float64(g.Pix[y*g.Stride+x])
			blur := float64(smooth.Pix[y*smooth.Stride+x*4])
			out.Pix[y*out.Stride+x] = clamp8(blur + factor*(orig-blur))
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
