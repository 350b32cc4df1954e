package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/textmask/internal/store"
	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/spf13/cobra"
)

var errNoLedger = errors.New("no run ledger configured (use --db or set POSTGRES_HOST)")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent mask runs from the run ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runHistory(cmd.Context(), os.Stdout, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, out io.Writer, limit int) error {
	if DB == nil {
		utils.ShowError("Failed to list runs", errNoLedger)
		return errNoLedger
	}
	runs, err := DB.ListRuns(ctx, limit)
	if err != nil {
		utils.ShowError("Failed to list runs", err)
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	writeRuns(out, runs)
	return nil
}

func writeRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tINPUT\tFOLDERS\tMASKS\tSKIPPED\tFAILED\tSTARTED\tDURATION")
	fmt.Fprintln(w, "---\t----\t-----\t-------\t-----\t-------\t------\t-------\t--------")

	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID.String()[:8], r.Mode, r.ParentInput, r.Folders, r.Masks, r.Failures, r.FailedTasks,
			r.StartedAt.Local().Format("2006-01-02 15:04"), duration)
	}
	w.Flush()
}
