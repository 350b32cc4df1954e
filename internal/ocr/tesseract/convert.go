// Package tesseract is an in-process OCR engine backed by the Tesseract C library.
// The engine itself needs cgo and is only compiled with the "tesseract" build tag;
// the conversions below are plain Go.
package tesseract

import (
	"image"
	"strings"

	"github.com/andresmejia3/textmask/internal/types"
)

// langCodes maps PaddleOCR language names onto Tesseract traineddata names.
var langCodes = map[string]string{
	"ch":          "chi_sim",
	"chinese_cht": "chi_tra",
	"en":          "eng",
	"japan":       "jpn",
	"korean":      "kor",
	"french":      "fra",
	"german":      "deu",
}

// Languages turns a language setting ("ch", "en+fr", "eng") into Tesseract language names.
// Names it does not know are passed through.
func Languages(lang string) []string {
	var out []string
	for _, l := range strings.FieldsFunc(lang, func(r rune) bool { return r == '+' || r == ',' }) {
		l = strings.TrimSpace(l)
		if code, ok := langCodes[l]; ok {
			l = code
		}
		if l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return []string{"eng"}
	}
	return out
}

// wordDetection converts a word box into a 4-point clockwise polygon on the
// box's last pixel row and column. Box.Max is exclusive while polygon
// vertices are painted inclusively. Tesseract confidences are percentages.
func wordDetection(box image.Rectangle, word string, confidence float64, recognize bool) types.Detection {
	x0, y0 := float64(box.Min.X), float64(box.Min.Y)
	x1, y1 := float64(max(box.Min.X, box.Max.X-1)), float64(max(box.Min.Y, box.Max.Y-1))
	d := types.Detection{
		Polygon: []types.Point{
			{X: x0, Y: y0},
			{X: x1, Y: y0},
			{X: x1, Y: y1},
			{X: x0, Y: y1},
		},
		Confidence: confidence / 100.0,
	}
	if recognize {
		d.Text = strings.TrimSpace(word)
	}
	return d
}
