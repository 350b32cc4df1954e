package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/textmask/internal/config"
	"github.com/andresmejia3/textmask/internal/logging"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/store"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the batch and folder commands
type Options struct {
	ParentInputDir  string
	ParentOutputDir string
	Parallel        bool
	Text            bool
	TextFile        string
	Engine          string
	Lang            string
	Classify        bool
	Strict          bool
	Dilate          int
	Debug           bool
	OverlayColor    string
	Device          int
	WorkerScript    string
	PythonBin       string
	DetScoreMode    string
	NoDetDilation   bool
	DetDilation     bool // resolved from config and NoDetDilation
}

var (
	// DB is the optional run ledger shared by subcommands. nil when no database is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
	// verbose switches logging to debug level
	verbose bool

	appConfig = &config.Config{Engine: "paddle", Lang: "ch", PythonBin: "python3", WorkerScript: "python/ocr_worker.py", LogLevel: "info"}
	logger    = logging.Nop()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "textmask",
	Short:   "Batch OCR text-region masking for folders of images",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		appConfig = cfg

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger = logging.New(level)

		// If no flag was provided, fall back to the POSTGRES_* environment
		if dbURL == "" {
			dbURL = cfg.DatabaseURL
		}
		if dbURL == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			// The ledger is optional; masks are still produced without it.
			logger.Warnw("Run ledger unavailable", "error", err)
			DB = nil
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		_ = logger.Sync()
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run ledger (default: built from POSTGRES_* when POSTGRES_HOST is set)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// addMaskFlags registers the flags shared by batch and folder.
func addMaskFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().BoolVar(&opts.Text, "text", false, "Also extract unique recognized text lines to <output_dir>.txt")
	cmd.Flags().StringVarP(&opts.Engine, "engine", "e", "", engineUsage())
	cmd.Flags().StringVarP(&opts.Lang, "lang", "l", "", "OCR language (default from TEXTMASK_LANG, else ch)")
	cmd.Flags().BoolVar(&opts.Classify, "cls", false, "Classify text orientation before recognition")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Fail the folder on the first OCR error instead of skipping the image")
	cmd.Flags().IntVar(&opts.Dilate, "dilate", -1, "Grow mask regions by N pixels (default from TEXTMASK_DILATE, else 0)")
	cmd.Flags().BoolVarP(&opts.Debug, "debug", "d", false, "Write tinted previews to <output_dir>/_debug/")
	cmd.Flags().StringVar(&opts.OverlayColor, "overlay-color", "", "Hex colour for debug previews (default #ff3b30)")
	cmd.Flags().IntVar(&opts.Device, "device", -1, "Pin OCR to one accelerator index (-1 inherits the host's visibility)")
	cmd.Flags().StringVar(&opts.WorkerScript, "worker-script", "", "Path to the Python OCR worker (default from TEXTMASK_WORKER_SCRIPT)")
	cmd.Flags().StringVar(&opts.DetScoreMode, "det-score-mode", "", "Detector box scoring: slow or fast (default from TEXTMASK_DET_SCORE_MODE, else slow)")
	cmd.Flags().BoolVar(&opts.NoDetDilation, "no-det-dilation", false, "Disable dilation of the detector's probability map (also TEXTMASK_DET_DILATION=false)")
}

// engineUsage lists the engines compiled into this binary.
func engineUsage() string {
	return fmt.Sprintf("OCR engine, one of: %s (default from TEXTMASK_ENGINE, else paddle)", strings.Join(ocr.Names(), ", "))
}

