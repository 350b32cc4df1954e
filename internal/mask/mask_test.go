package mask

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/textmask/internal/types"
)

func quad(x0, y0, x1, y1 float64) []types.Point {
	return []types.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// regions counts 4-connected white components and returns their bounding boxes.
func regions(m *Mask) []image.Rectangle {
	b := m.Bounds()
	seen := make(map[image.Point]bool)
	var out []image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := image.Pt(x, y)
			if !m.IsSet(x, y) || seen[p] {
				continue
			}
			box := image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
			stack := []image.Point{p}
			seen[p] = true
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				box = box.Union(image.Rectangle{Min: cur, Max: cur.Add(image.Pt(1, 1))})
				for _, d := range []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					n := cur.Add(d)
					if m.IsSet(n.X, n.Y) && !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
			out = append(out, box)
		}
	}
	return out
}

func TestRasterizeNoDetections(t *testing.T) {
	bounds := image.Rect(0, 0, 64, 48)
	m := Rasterize(bounds, nil)

	if m.Bounds() != bounds {
		t.Errorf("Expected bounds %v, got %v", bounds, m.Bounds())
	}
	if got := m.Coverage(); got != 0 {
		t.Errorf("Expected all-black mask, got %d white pixels", got)
	}
}

func TestFillAxisAlignedQuad(t *testing.T) {
	m := Rasterize(image.Rect(0, 0, 100, 100), []types.Detection{{Polygon: quad(10, 10, 50, 50)}})

	// Boundary is inclusive: 41 x 41 pixels
	if got, want := m.Coverage(), 41*41; got != want {
		t.Errorf("Expected %d white pixels, got %d", want, got)
	}
	for _, p := range []image.Point{{10, 10}, {50, 50}, {10, 50}, {50, 10}, {30, 30}} {
		if !m.IsSet(p.X, p.Y) {
			t.Errorf("Expected %v to be white", p)
		}
	}
	for _, p := range []image.Point{{9, 10}, {51, 50}, {30, 9}, {30, 51}, {0, 0}} {
		if m.IsSet(p.X, p.Y) {
			t.Errorf("Expected %v to be black", p)
		}
	}
}

func TestFillRoundsCoordinates(t *testing.T) {
	exact := Rasterize(image.Rect(0, 0, 40, 40), []types.Detection{{Polygon: quad(5, 5, 20, 20)}})
	fuzzy := Rasterize(image.Rect(0, 0, 40, 40), []types.Detection{{Polygon: quad(4.6, 5.4, 19.5, 20.2)}})

	if exact.Coverage() != fuzzy.Coverage() {
		t.Fatalf("Rounded polygon coverage differs: %d vs %d", exact.Coverage(), fuzzy.Coverage())
	}
	for i := range exact.gray.Pix {
		if exact.gray.Pix[i] != fuzzy.gray.Pix[i] {
			t.Fatalf("Pixel %d differs after rounding", i)
		}
	}
}

func TestFillDisjointRegions(t *testing.T) {
	dets := []types.Detection{
		{Polygon: quad(2, 2, 10, 6)},
		{Polygon: quad(20, 2, 30, 12)},
		{Polygon: quad(5, 20, 25, 28)},
	}
	m := Rasterize(image.Rect(0, 0, 40, 40), dets)

	got := regions(m)
	if len(got) != len(dets) {
		t.Fatalf("Expected %d regions, got %d", len(dets), len(got))
	}
	want := []image.Rectangle{
		image.Rect(2, 2, 11, 7),
		image.Rect(20, 2, 31, 13),
		image.Rect(5, 20, 26, 29),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Region %d: expected bounds %v, got %v", i, want[i], got[i])
		}
	}
}

func TestFillOverlapIsUnion(t *testing.T) {
	a := quad(0, 0, 9, 9)
	b := quad(5, 5, 14, 14)
	m := Rasterize(image.Rect(0, 0, 20, 20), []types.Detection{{Polygon: a}, {Polygon: b}, {Polygon: a}})

	// 10x10 + 10x10 - 5x5 overlap
	if got := m.Coverage(); got != 175 {
		t.Errorf("Expected 175 white pixels, got %d", got)
	}
}

func TestFillTriangleAndConcave(t *testing.T) {
	m := New(image.Rect(0, 0, 30, 30))
	m.Fill([]types.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 0, Y: 20}})
	if !m.IsSet(5, 5) || m.IsSet(15, 15) {
		t.Error("Triangle fill is wrong")
	}

	// U shape: the notch between the arms stays black
	u := New(image.Rect(0, 0, 30, 30))
	u.Fill([]types.Point{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 6, Y: 15}, {X: 14, Y: 15}, {X: 14, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 25}, {X: 0, Y: 25}})
	if u.IsSet(10, 5) {
		t.Error("Expected the notch of a concave polygon to stay black")
	}
	if !u.IsSet(3, 5) || !u.IsSet(17, 5) || !u.IsSet(10, 20) {
		t.Error("Expected the arms and base of a concave polygon to be white")
	}
}

func TestFillDegenerateAndClipped(t *testing.T) {
	m := New(image.Rect(0, 0, 10, 10))
	m.Fill([]types.Point{{X: 1, Y: 1}, {X: 5, Y: 5}})
	if m.Coverage() != 0 {
		t.Error("Expected a two-point polygon to be ignored")
	}

	// Partially outside: must not panic, fills the visible part only
	m.Fill(quad(-5, -5, 4, 4))
	if got := m.Coverage(); got != 25 {
		t.Errorf("Expected 25 clipped pixels, got %d", got)
	}

	// Entirely outside
	m.Fill(quad(100, 100, 200, 200))
	if got := m.Coverage(); got != 25 {
		t.Errorf("Expected coverage to stay 25, got %d", got)
	}
}

func TestFillNonZeroOrigin(t *testing.T) {
	m := New(image.Rect(10, 10, 30, 30))
	m.Fill(quad(12, 12, 14, 14))
	if got := m.Coverage(); got != 9 {
		t.Errorf("Expected 9 pixels, got %d", got)
	}
}

func TestDilate(t *testing.T) {
	m := New(image.Rect(0, 0, 21, 21))
	m.Fill(quad(10, 10, 10.4, 10.4)) // collapses to a single pixel
	before := m.Coverage()
	if before != 1 {
		t.Fatalf("Expected single pixel, got %d", before)
	}

	m.Dilate(0)
	if m.Coverage() != 1 {
		t.Error("Dilate(0) must be a no-op")
	}

	m.Dilate(2)
	if m.Coverage() <= before {
		t.Errorf("Expected dilation to grow coverage, got %d", m.Coverage())
	}
	if !m.IsSet(10, 10) || !m.IsSet(11, 10) {
		t.Error("Expected the seed and its neighbour to be white")
	}
	if m.IsSet(0, 0) {
		t.Error("Expected far corner to stay black")
	}
	for _, v := range m.gray.Pix {
		if v != black && v != white {
			t.Fatalf("Expected a binary mask after dilation, found %d", v)
		}
	}
}

func TestRender(t *testing.T) {
	m := Rasterize(image.Rect(0, 0, 8, 8), []types.Detection{{Polygon: quad(1, 1, 3, 3)}})

	gray := m.Render(image.NewGray(image.Rect(0, 0, 8, 8)))
	if _, ok := gray.(*image.Gray); !ok {
		t.Errorf("Expected *image.Gray for gray source, got %T", gray)
	}

	rgb := m.Render(image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	out, ok := rgb.(*image.RGBA)
	if !ok {
		t.Fatalf("Expected *image.RGBA for color source, got %T", rgb)
	}
	if c := out.RGBAAt(2, 2); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white inside, got %v", c)
	}
	if c := out.RGBAAt(6, 6); c != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("Expected opaque black outside, got %v", c)
	}
}

func TestFillFarVertexIsClipped(t *testing.T) {
	m := New(image.Rect(0, 0, 100, 100))

	start := time.Now()
	m.Fill([]types.Point{{X: -2e9, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 20}, {X: -2e9, Y: 20}})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fill with a distant vertex took %v", elapsed)
	}

	// Rows 10..20, columns 0..50
	if got := m.Coverage(); got != 11*51 {
		t.Errorf("Expected %d white pixels, got %d", 11*51, got)
	}
	if !m.IsSet(0, 10) || !m.IsSet(0, 20) || m.IsSet(51, 15) || m.IsSet(10, 21) {
		t.Error("Clipped polygon has the wrong extent")
	}
}

func TestFillNonFiniteIgnored(t *testing.T) {
	m := New(image.Rect(0, 0, 20, 20))
	m.Fill([]types.Point{{X: 0, Y: 0}, {X: math.NaN(), Y: 5}, {X: 10, Y: 10}})
	m.Fill([]types.Point{{X: 0, Y: 0}, {X: math.Inf(1), Y: 5}, {X: 10, Y: 10}})
	if m.Coverage() != 0 {
		t.Errorf("Expected polygons with non-finite points to be ignored, got %d pixels", m.Coverage())
	}

	// Huge but finite coordinates are clamped instead of overflowing
	start := time.Now()
	m.Fill([]types.Point{{X: -1e300, Y: -1e300}, {X: 1e300, Y: -1e300}, {X: 1e300, Y: 1e300}, {X: -1e300, Y: 1e300}})
	if time.Since(start) > time.Second {
		t.Error("Fill with huge coordinates is too slow")
	}
	if m.Coverage() != 400 {
		t.Errorf("Expected the whole canvas to be covered, got %d", m.Coverage())
	}
}

func TestClipSegment(t *testing.T) {
	r := image.Rect(0, 0, 10, 10)

	ax, ay, bx, by, ok := clipSegment(2, 3, 7, 8, r)
	if !ok || ax != 2 || ay != 3 || bx != 7 || by != 8 {
		t.Errorf("Inside segment changed: %v %v %v %v %v", ax, ay, bx, by, ok)
	}

	ax, ay, bx, by, ok = clipSegment(-100, 5, 100, 5, r)
	if !ok || math.Abs(ax) > 1e-9 || math.Abs(bx-9) > 1e-9 || ay != 5 || by != 5 {
		t.Errorf("Crossing segment clipped to %v,%v-%v,%v", ax, ay, bx, by)
	}

	if _, _, _, _, ok := clipSegment(-5, -5, -1, 20, r); ok {
		t.Error("Segment left of the canvas should be rejected")
	}
}
