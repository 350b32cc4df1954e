// Package processor turns one folder of images into one folder of text masks.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/textmask/internal/mask"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/andresmejia3/textmask/internal/worker"
	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const (
	jpegQuality  = 95
	debugDirName = "_debug"
	overlayAlpha = 0.5
)

// Options control how a folder is processed.
type Options struct {
	ClassifyOrientation bool
	// Strict makes an OCR failure on any image fatal to the folder.
	Strict       bool
	DilateRadius int
	// Debug writes tinted previews to <outputDir>/_debug.
	Debug        bool
	OverlayColor string
	Logger       *zap.SugaredLogger
	// Progress receives the progress bar. Defaults to os.Stderr.
	Progress io.Writer
}

// ProcessFolder writes one mask per image in task.InputDir to task.OutputDir and, when
// task.TextPath is set, the folder's unique recognised lines to task.TextPath.
//
// Unreadable images and (unless Strict) OCR failures are logged, counted and skipped.
// A dead OCR worker, an uncreatable output folder or a failed write is fatal to the folder.
func ProcessFolder(ctx context.Context, task types.FolderTask, svc ocr.Service, opts Options) (types.FolderReport, error) {
	start := time.Now()
	report := types.FolderReport{Task: task}
	fail := func(err error) (types.FolderReport, error) {
		report.Duration = time.Since(start)
		report.Err = err
		return report, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	progressOut := opts.Progress
	if progressOut == nil {
		progressOut = os.Stderr
	}
	overlayColor := opts.OverlayColor
	if overlayColor == "" {
		overlayColor = mask.DefaultOverlayColor
	}

	files, err := utils.ListImages(task.InputDir)
	if err != nil {
		return fail(fmt.Errorf("failed to read input folder %s: %w", task.InputDir, err))
	}
	if err := os.MkdirAll(task.OutputDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create output folder %s: %w", task.OutputDir, err))
	}
	if opts.Debug {
		if err := os.MkdirAll(filepath.Join(task.OutputDir, debugDirName), 0755); err != nil {
			return fail(fmt.Errorf("failed to create debug folder: %w", err))
		}
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription(fmt.Sprintf("Processing %s", task.InputDir)),
		progressbar.OptionSetWriter(progressOut), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	var text *TextAccumulator
	if task.TextPath != "" {
		text = NewTextAccumulator()
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		bar.Add(1)
		report.Images++
		inPath := filepath.Join(task.InputDir, name)

		// 1. Decode
		raw, err := os.ReadFile(inPath)
		if err != nil {
			log.Warnw("Skipping unreadable image", "file", inPath, "error", err)
			report.Failures++
			continue
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			log.Warnw("Skipping undecodable image", "file", inPath, "error", err)
			report.Failures++
			continue
		}

		// 2. Detect
		dets, err := svc.Detect(ctx, raw, opts.ClassifyOrientation)
		if err != nil {
			if errors.Is(err, worker.ErrWorkerDied) || opts.Strict || ctx.Err() != nil {
				return fail(fmt.Errorf("ocr failed on %s: %w", inPath, err))
			}
			log.Warnw("OCR failed, skipping image", "file", inPath, "error", err)
			report.Failures++
			continue
		}

		// 3. Rasterize
		m := mask.Rasterize(img.Bounds(), dets)
		m.Dilate(opts.DilateRadius)

		// 4. Text
		if text != nil && text.Add(JoinText(dets)) {
			report.TextLines++
		}

		// 5. Encode with the source's format
		if err := saveImage(m.Render(img), filepath.Join(task.OutputDir, name)); err != nil {
			return fail(fmt.Errorf("failed to write mask for %s: %w", inPath, err))
		}
		report.Masks++
		log.Debugw("Mask written", "file", name, "detections", len(dets), "coverage", m.Coverage())

		if opts.Debug {
			preview, err := mask.Overlay(img, m, overlayColor, overlayAlpha)
			if err != nil {
				return fail(err)
			}
			if err := saveImage(preview, filepath.Join(task.OutputDir, debugDirName, name)); err != nil {
				log.Warnw("Failed to write debug preview", "file", name, "error", err)
			}
		}
	}

	if text != nil {
		if err := text.WriteFile(task.TextPath); err != nil {
			return fail(fmt.Errorf("failed to write text file %s: %w", task.TextPath, err))
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func saveImage(img image.Image, path string) error {
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}
