package mask

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultOverlayColor is used for debug previews when no colour is configured.
const DefaultOverlayColor = "#ff3b30"

// Overlay returns a preview of src with masked pixels tinted by hexColor.
// alpha is the tint strength in [0, 1]; 0 leaves src unchanged.
func Overlay(src image.Image, m *Mask, hexColor string, alpha float64) (*image.NRGBA, error) {
	tint, err := colorful.Hex(hexColor)
	if err != nil {
		return nil, fmt.Errorf("invalid overlay color %q: %w", hexColor, err)
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("overlay alpha must be between 0.0 and 1.0, got %f", alpha)
	}

	out := imaging.Clone(src) // zero-origin copy
	mb := m.Bounds()
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			if !m.IsSet(mb.Min.X+x, mb.Min.Y+y) {
				continue
			}
			off := out.PixOffset(x, y)
			// Opaque input, so MakeColor always succeeds.
			base, _ := colorful.MakeColor(color.NRGBA{out.Pix[off], out.Pix[off+1], out.Pix[off+2], 255})
			r, g, b := base.BlendRgb(tint, alpha).Clamped().RGB255()
			out.Pix[off] = r
			out.Pix[off+1] = g
			out.Pix[off+2] = b
			out.Pix[off+3] = 255
		}
	}
	return out, nil
}
