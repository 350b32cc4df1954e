//go:build tesseract

package tesseract

import (
	"context"
	"fmt"

	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/otiai10/gosseract/v2"
)

func init() {
	ocr.Register("tesseract", func(_ context.Context, _ int, s ocr.Settings) (ocr.Service, error) {
		return NewEngine(s)
	})
}

// Engine runs Tesseract in-process. The device index is ignored; Tesseract is CPU only.
type Engine struct {
	client    *gosseract.Client
	recognize bool
}

// NewEngine creates a gosseract client configured for s.Lang.
func NewEngine(s ocr.Settings) (*Engine, error) {
	c := gosseract.NewClient()
	if err := c.SetLanguage(Languages(s.Lang)...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return &Engine{client: c, recognize: s.Recognize}, nil
}

// Detect returns one polygon per recognised word.
func (e *Engine) Detect(ctx context.Context, image []byte, classifyOrientation bool) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	psm := gosseract.PSM_AUTO
	if classifyOrientation {
		psm = gosseract.PSM_AUTO_OSD
	}
	if err := e.client.SetPageSegMode(psm); err != nil {
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := e.client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}

	dets := make([]types.Detection, 0, len(boxes))
	for _, b := range boxes {
		if b.Box.Empty() {
			continue
		}
		dets = append(dets, wordDetection(b.Box, b.Word, b.Confidence, e.recognize))
	}
	return dets, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}
