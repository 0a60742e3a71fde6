package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var cancelJsonFlag bool

func init() {
	cancelCmd.Flags().BoolVar(&cancelJsonFlag, "json", false, "Output the full response as JSON")
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <name>",
	Short: "Interrupt the running command (Ctrl+C)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Cancel(cmd.Context(), tools.CancelRequest{Name: args[0]})
	if err != nil {
		return err
	}
	return printResult(cancelJsonFlag, resp, tools.FormatCancel(resp), resp.Success)
}
