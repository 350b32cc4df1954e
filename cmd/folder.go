package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/processor"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/spf13/cobra"
)

var folderOpts Options

var folderCmd = &cobra.Command{
	Use:   "folder <input_dir> <output_dir>",
	Short: "Mask the images of a single folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFolder(cmd.Context(), args[0], args[1], folderOpts)
	},
}

func init() {
	addMaskFlags(folderCmd, &folderOpts)
	folderCmd.Flags().StringVar(&folderOpts.TextFile, "text-file", "", "Write recognized text here instead of <output_dir>.txt (implies --text)")
	rootCmd.AddCommand(folderCmd)
}

func runFolder(ctx context.Context, inputDir, outputDir string, opts Options) error {
	applyDefaults(&opts, appConfig)
	if err := validateOptions(&opts); err != nil {
		utils.ShowError("Invalid options", err)
		return err
	}
	if !utils.DirExists(inputDir) {
		err := fmt.Errorf("input folder %s does not exist", inputDir)
		utils.ShowError("Input folder does not exist", err)
		return err
	}

	task := types.FolderTask{InputDir: inputDir, OutputDir: outputDir, Device: opts.Device}
	if opts.Text {
		task.TextPath = opts.TextFile
		if task.TextPath == "" {
			task.TextPath = utils.TextPathFor(outputDir)
		}
	}

	factory, err := ocr.Lookup(opts.Engine)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🚀 Starting %s OCR engine...\n", opts.Engine)
	svc, err := factory(ctx, task.Device, opts.settings())
	if err != nil {
		utils.ShowError("Failed to start OCR engine", err)
		return err
	}
	defer svc.Close()

	runLedger := beginLedger(ctx, DB, inputDir, outputDir, "folder")

	report, err := processor.ProcessFolder(ctx, task, svc, opts.processorOptions())
	runLedger.record(context.Background(), report)
	if err != nil {
		utils.ShowError("Folder processing failed", err)
		return err
	}
	runLedger.finish(context.Background())

	fmt.Fprintf(os.Stderr, "\n🏁 Done. %d masks written to %s", report.Masks, filepath.Clean(outputDir))
	if report.Failures > 0 {
		fmt.Fprintf(os.Stderr, " (%d images skipped)", report.Failures)
	}
	if task.TextPath != "" {
		fmt.Fprintf(os.Stderr, ", %d unique lines in %s", report.TextLines, task.TextPath)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
