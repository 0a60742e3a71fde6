package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List named terminals",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var listJsonFlag bool

func init() {
	listCmd.Flags().BoolVar(&listJsonFlag, "json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.List(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(listJsonFlag, resp, tools.FormatList(resp), true)
}
