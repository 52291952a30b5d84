package ocr

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// minSkew is the smallest deviation from axis-aligned, in degrees, that triggers a rotation.
const minSkew = 0.5

// inkBelow marks a pixel as foreground (ink) in a binarized page.
const inkBelow = 128

type point struct{ x, y float64 }

// skewAngle returns the orientation in degrees of the minimum-area rectangle enclosing the
// ink pixels of g, normalised to (-45, 45]. Positive angles mean the content is rotated
// clockwise. ok is false when there is not enough ink to define a rectangle.
func skewAngle(g *image.Gray) (angle float64, ok bool) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	// the hull of all ink equals the hull of each row's outermost ink pixels
	var pts []point
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		left, right := -1, -1
		for x, v := range row {
			if v < inkBelow {
				if left < 0 {
					left = x
				}
				right = x
			}
		}
		if left < 0 {
			continue
		}
		pts = append(pts, point{float64(left), float64(y)})
		if right != left {
			pts = append(pts, point{float64(right), float64(y)})
		}
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0, false
	}

	bestArea := math.Inf(1)
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		dx, dy := b.x-a.x, b.y-a.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := -p.x*uy + p.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea {
			bestArea = area
			angle = math.Atan2(dy, dx) * 180 / math.Pi
		}
	}
	for angle > 45 {
		angle -= 90
	}
	for angle <= -45 {
		angle += 90
	}
	return angle, true
}

// convexHull returns the hull of pts in counter-clockwise order (monotone chain).
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// deskew rotates g so its ink is axis-aligned when the detected skew exceeds minSkew.
// The canvas keeps its size and uncovered corners are filled white. It returns the
// rotation applied in degrees, or 0.
func deskew(g *image.Gray) (*image.Gray, float64) {
	angle, ok := skewAngle(g)
	if !ok || math.Abs(angle) <= minSkew {
		return g, 0
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	// imaging rotates counter-clockwise, which undoes a clockwise skew of the same angle
	rotated := imaging.Rotate(g, angle, color.White)
	return toGray(imaging.CropCenter(rotated, w, h)), angle
}
