package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/textmask/internal/device"
	"github.com/andresmejia3/textmask/internal/fanout"
	"github.com/andresmejia3/textmask/internal/ocr"
	"github.com/andresmejia3/textmask/internal/types"
	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/spf13/cobra"
)

var batchOpts Options

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Mask every child folder of a parent folder",
	Long: `Walks the child folders of --parent-input-dir and writes one mask per image to
the matching child of --parent-output-dir. With --parallel the folders are
spread round-robin over every GPU reported by nvidia-smi.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runBatch(cmd.Context(), batchOpts)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOpts.ParentInputDir, "parent-input-dir", "i", "", "Folder whose child folders hold the input images")
	batchCmd.Flags().StringVarP(&batchOpts.ParentOutputDir, "parent-output-dir", "o", "", "Folder that receives one output folder per child")
	batchCmd.Flags().BoolVarP(&batchOpts.Parallel, "parallel", "p", false, "Process folders concurrently, one OCR worker per GPU")
	addMaskFlags(batchCmd, &batchOpts)

	batchCmd.MarkFlagRequired("parent-input-dir")
	batchCmd.MarkFlagRequired("parent-output-dir")
	rootCmd.AddCommand(batchCmd)
}

// runBatch orchestrates a parent-folder run: options, engine lookup, ledger and fan-out.
func runBatch(ctx context.Context, opts Options) error {
	applyDefaults(&opts, appConfig)
	if err := validateOptions(&opts); err != nil {
		utils.ShowError("Invalid options", err)
		return err
	}

	factory, err := ocr.Lookup(opts.Engine)
	if err != nil {
		return err
	}

	mode := "sequential"
	if opts.Parallel {
		mode = "parallel"
	}
	fmt.Fprintf(os.Stderr, "🚀 Masking %s -> %s (engine: %s, %s)\n", opts.ParentInputDir, opts.ParentOutputDir, opts.Engine, mode)

	var runLedger *ledger
	if utils.DirExists(opts.ParentInputDir) {
		runLedger = beginLedger(ctx, DB, opts.ParentInputDir, opts.ParentOutputDir, mode)
	}

	coord := &fanout.Coordinator{
		Engine:      factory,
		Settings:    opts.settings(),
		Enumerator:  device.NvidiaSMI{},
		Parallel:    opts.Parallel,
		ExtractText: opts.Text,
		Device:      opts.Device,
		Options:     opts.processorOptions(),
		Logger:      logger,
		// The ledger uses its own context so Ctrl+C still records what finished.
		OnReport: func(r types.FolderReport) { runLedger.record(context.Background(), r) },
	}

	if err := coord.ProcessParent(ctx, opts.ParentInputDir, opts.ParentOutputDir); err != nil {
		utils.ShowError("Batch run failed", err)
		return err
	}
	runLedger.finish(context.Background())
	return nil
}
