// Package mask rasterizes OCR detections into binary text masks.
//
// A Mask is a single 8-bit layer the size of the source image. Pixels inside any
// detection polygon are 255 (white); everything else stays 0 (black). Filling is
// a scan-line even-odd fill whose polygon boundary is drawn inclusively, so an
// axis-aligned quad from (10,10) to (50,50) covers 41x41 pixels.
package mask

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/andresmejia3/textmask/internal/types"
	"github.com/anthonynsimon/bild/effect"
)

const (
	black = 0
	white = 255
)

// Mask is a black canvas that detection polygons are painted onto.
type Mask struct {
	gray *image.Gray
}

type ipoint struct{ x, y int }

// New returns an all-black mask covering bounds.
func New(bounds image.Rectangle) *Mask {
	return &Mask{gray: image.NewGray(bounds)}
}

// Rasterize builds the mask for an image of the given bounds from its detections.
// No detections yields an all-black mask.
func Rasterize(bounds image.Rectangle, dets []types.Detection) *Mask {
	m := New(bounds)
	for _, d := range dets {
		m.Fill(d.Polygon)
	}
	return m
}

// Bounds returns the canvas bounds.
func (m *Mask) Bounds() image.Rectangle { return m.gray.Rect }

// IsSet reports whether (x, y) is white.
func (m *Mask) IsSet(x, y int) bool {
	if !image.Pt(x, y).In(m.gray.Rect) {
		return false
	}
	return m.gray.Pix[m.gray.PixOffset(x, y)] == white
}

// Coverage counts white pixels.
func (m *Mask) Coverage() int {
	n := 0
	for _, v := range m.gray.Pix {
		if v == white {
			n++
		}
	}
	return n
}

// maxCoord bounds vertex coordinates so rounding to int never overflows.
const maxCoord = 1 << 40

// Fill paints the polygon white. Coordinates are rounded to the nearest pixel.
// Polygons with fewer than 3 vertices or a non-finite coordinate are ignored;
// parts outside the canvas are clipped.
func (m *Mask) Fill(poly []types.Point) {
	if len(poly) < 3 {
		return
	}
	pts := make([]ipoint, len(poly))
	minY, maxY := math.MaxInt, math.MinInt
	for i, p := range poly {
		if !finite(p.X) || !finite(p.Y) {
			return
		}
		pts[i] = ipoint{int(math.Round(clampCoord(p.X))), int(math.Round(clampCoord(p.Y)))}
		minY = min(minY, pts[i].y)
		maxY = max(maxY, pts[i].y)
	}

	r := m.gray.Rect
	minY = max(minY, r.Min.Y)
	maxY = min(maxY, r.Max.Y-1)

	n := len(pts)
	xs := make([]float64, 0, n)
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := 0; i < n; i++ {
			a, b := pts[i], pts[(i+1)%n]
			if a.y == b.y {
				continue
			}
			if a.y > b.y {
				a, b = b, a
			}
			// Half-open span so shared vertices are counted once.
			if y < a.y || y >= b.y {
				continue
			}
			x := float64(a.x) + float64(y-a.y)*float64(b.x-a.x)/float64(b.y-a.y)
			xs = append(xs, x)
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			m.hline(int(math.Ceil(xs[i])), int(math.Floor(xs[i+1])), y)
		}
	}

	for i := 0; i < n; i++ {
		m.line(pts[i], pts[(i+1)%n])
	}
}

func (m *Mask) hline(x0, x1, y int) {
	r := m.gray.Rect
	x0 = max(x0, r.Min.X)
	x1 = min(x1, r.Max.X-1)
	if x0 > x1 {
		return
	}
	off := m.gray.PixOffset(x0, y)
	row := m.gray.Pix[off : off+(x1-x0)+1]
	for i := range row {
		row[i] = white
	}
}

func (m *Mask) set(x, y int) {
	if image.Pt(x, y).In(m.gray.Rect) {
		m.gray.Pix[m.gray.PixOffset(x, y)] = white
	}
}

// line draws a Bresenham segment, inclusive of both end points. The segment is
// clipped to the canvas first so only visible pixels are stepped.
func (m *Mask) line(a, b ipoint) {
	ax, ay, bx, by, ok := clipSegment(float64(a.x), float64(a.y), float64(b.x), float64(b.y), m.gray.Rect)
	if !ok {
		return
	}
	a = ipoint{int(math.Round(ax)), int(math.Round(ay))}
	b = ipoint{int(math.Round(bx)), int(math.Round(by))}

	dx := abs(b.x - a.x)
	dy := -abs(b.y - a.y)
	sx, sy := 1, 1
	if a.x > b.x {
		sx = -1
	}
	if a.y > b.y {
		sy = -1
	}
	e := dx + dy
	x, y := a.x, a.y
	for {
		m.set(x, y)
		if x == b.x && y == b.y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// clipSegment clips (x0,y0)-(x1,y1) to the pixel centres of r (Liang-Barsky).
// A segment already inside r comes back unchanged.
func clipSegment(x0, y0, x1, y1 float64, r image.Rectangle) (ax, ay, bx, by float64, ok bool) {
	xmin, ymin := float64(r.Min.X), float64(r.Min.Y)
	xmax, ymax := float64(r.Max.X-1), float64(r.Max.Y-1)
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	for _, pq := range [4][2]float64{
		{-dx, x0 - xmin},
		{dx, xmax - x0},
		{-dy, y0 - ymin},
		{dy, ymax - y0},
	} {
		p, q := pq[0], pq[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = min(t1, t)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// Dilate grows white regions by radius pixels. A radius <= 0 leaves the mask untouched.
func (m *Mask) Dilate(radius int) {
	if radius <= 0 {
		return
	}
	grown := effect.Dilate(m.gray, float64(radius))
	b := m.gray.Rect
	g := grown.Rect.Min
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// bild may hand back a zero-origin image, so index relative to each origin
			off := grown.PixOffset(g.X+x-b.Min.X, g.Y+y-b.Min.Y)
			v := uint8(black)
			if grown.Pix[off] > 127 {
				v = white
			}
			m.gray.Pix[m.gray.PixOffset(x, y)] = v
		}
	}
}

// Render converts the mask into an image shaped like src for encoding.
// Gray sources get a gray mask; everything else gets an opaque RGB mask.
func (m *Mask) Render(src image.Image) image.Image {
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return m.gray
	}

	b := m.gray.Rect
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := m.gray.Pix[m.gray.PixOffset(x, y)]
			off := out.PixOffset(x, y)
			out.Pix[off] = v
			out.Pix[off+1] = v
			out.Pix[off+2] = v
			out.Pix[off+3] = 255
		}
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clampCoord(v float64) float64 { return math.Max(-maxCoord, math.Min(maxCoord, v)) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
