package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/textmask/internal/device"
	"github.com/andresmejia3/textmask/internal/utils"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the GPUs a parallel batch would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		devs, err := device.NvidiaSMI{}.List(cmd.Context())
		if err != nil {
			utils.ShowError("Device enumeration failed", err)
			return err
		}
		if len(devs) == 0 {
			utils.ShowError("Device enumeration failed", device.ErrNoDevices)
			return device.ErrNoDevices
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "INDEX\tUUID\tNAME")
		fmt.Fprintln(w, "-----\t----\t----")
		for _, d := range devs {
			fmt.Fprintf(w, "%d\t%s\t%s\n", d.Index, d.UUID, d.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
