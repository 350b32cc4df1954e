package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB       bool
	resetDebugDir string
	resetYes      bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (run ledger, debug previews)",
	Long:  "Drops the run ledger tables. Use --debug-dir to also delete the _debug preview folders under a parent output folder.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing the ledger
		if !resetDB && resetDebugDir == "" {
			resetDB = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				utils.ShowError("Failed to reset database", errNoLedger)
				return errNoLedger
			}
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP the run ledger tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err)
					return err
				}
			}
		}

		if resetDebugDir != "" {
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all debug previews under %s?", resetDebugDir)) {
				fmt.Println("🗑️  Clearing Debug Previews...")
				n, err := removeDebugDirs(resetDebugDir)
				if err != nil {
					utils.ShowError("Failed to list output folders", err)
					return err
				}
				fmt.Printf("   Removed %d preview folders\n", n)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "ledger", false, "Drop the run ledger tables")
	resetCmd.Flags().StringVar(&resetDebugDir, "debug-dir", "", "Parent output folder whose <child>/_debug previews are deleted")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeDebugDirs deletes parentOut/<child>/_debug for every child and returns how many existed.
func removeDebugDirs(parentOut string) (int, error) {
	children, err := utils.ListSubdirs(parentOut)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range children {
		dir := filepath.Join(parentOut, c, "_debug")
		if !utils.DirExists(dir) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", dir, err)
			continue
		}
		n++
	}
	return n, nil
}
