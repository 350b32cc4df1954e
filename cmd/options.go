package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/textmask/internal/config"
	"github.com/andresmejia3/textmask/internal/mask"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/processor"
	"github.com/andresmejia3/textmask/internal/store"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"
)

// applyDefaults fills every option the user left unset from the environment config.
func applyDefaults(opts *Options, cfg *config.Config) {
	if opts.Engine == "" {
		opts.Engine = cfg.Engine
	}
	if opts.Lang == "" {
		opts.Lang = cfg.Lang
	}
	if opts.WorkerScript == "" {
		opts.WorkerScript = cfg.WorkerScript
	}
	if opts.PythonBin == "" {
		opts.PythonBin = cfg.PythonBin
	}
	if opts.Dilate < 0 {
		opts.Dilate = cfg.DilateRadius
	}
	if opts.DetScoreMode == "" {
		opts.DetScoreMode = cfg.DetScoreMode
	}
	opts.DetDilation = cfg.DetDilation && !opts.NoDetDilation
	if opts.OverlayColor == "" {
		opts.OverlayColor = mask.DefaultOverlayColor
	}
	if opts.TextFile != "" {
		opts.Text = true
	}
}

// validateOptions ensures all CLI arguments are valid before starting heavy processes.
func validateOptions(opts *Options) error {
	if _, err := ocr.Lookup(opts.Engine); err != nil {
		return err
	}
	if opts.Dilate < 0 {
		return fmt.Errorf("invalid dilate radius: must be >= 0, got %d", opts.Dilate)
	}
	if opts.Device < -1 {
		return fmt.Errorf("invalid device index: must be >= -1, got %d", opts.Device)
	}
	if opts.Parallel && opts.Device != -1 {
		return fmt.Errorf("--device pins a single device and cannot be combined with --parallel")
	}
	if opts.DetScoreMode != "" {
		if err := config.ValidateDetScoreMode(opts.DetScoreMode); err != nil {
			return err
		}
	}
	if _, err := colorful.Hex(opts.OverlayColor); err != nil {
		return fmt.Errorf("invalid overlay color %q: %w", opts.OverlayColor, err)
	}
	return nil
}

func (o *Options) settings() ocr.Settings {
	return ocr.Settings{
		Lang:         o.Lang,
		Recognize:    o.Text,
		PythonBin:    o.PythonBin,
		WorkerScript: o.WorkerScript,
		DetScoreMode: o.DetScoreMode,
		DetDilation:  o.DetDilation,
	}
}

func (o *Options) processorOptions() processor.Options {
	return processor.Options{
		ClassifyOrientation: o.Classify,
		Strict:              o.Strict,
		DilateRadius:        o.Dilate,
		Debug:               o.Debug,
		OverlayColor:        o.OverlayColor,
		Logger:              logger,
	}
}

// ledger writes run history when a database is configured. Every failure is a
// warning; the ledger never stops mask production.
type ledger struct {
	db    *store.Store
	runID uuid.UUID
}

func beginLedger(ctx context.Context, db *store.Store, parentIn, parentOut, mode string) *ledger {
	if db == nil {
		return nil
	}
	id, err := db.BeginRun(ctx, parentIn, parentOut, mode)
	if err != nil {
		logger.Warnw("Failed to record run start", "error", err)
		return nil
	}
	logger.Debugw("Run registered", "run", id)
	return &ledger{db: db, runID: id}
}

func (l *ledger) record(ctx context.Context, r types.FolderReport) {
	if l == nil {
		return
	}
	if err := l.db.RecordFolder(ctx, l.runID, r); err != nil {
		logger.Warnw("Failed to record folder result", "folder", r.Task.InputDir, "error", err)
	}
}

func (l *ledger) finish(ctx context.Context) {
	if l == nil {
		return
	}
	if err := l.db.FinishRun(ctx, l.runID); err != nil {
		logger.Warnw("Failed to record run completion", "error", err)
		return
	}
	fmt.Fprintf(os.Stderr, "🗂️  Run %s recorded in the ledger\n", l.runID.String()[:8])
}
