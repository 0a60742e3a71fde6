package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var renameJsonFlag bool

func init() {
	renameCmd.Flags().BoolVar(&renameJsonFlag, "json", false, "Output as JSON")
}

var renameCmd = &cobra.Command{
	Use:   "rename <old-name> <new-name>",
	Short: "Rename a terminal",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Rename(cmd.Context(), tools.RenameRequest{OldName: args[0], NewName: args[1]})
	if err != nil {
		return err
	}
	return printResult(renameJsonFlag, resp, tools.FormatRename(resp), resp.Success)
}
