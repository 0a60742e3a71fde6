package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var deleteJsonFlag bool

func init() {
	deleteCmd.Flags().BoolVar(&deleteJsonFlag, "json", false, "Output as JSON")
}

var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"kill"},
	Short:   "Close a named terminal",
	Long: `Close a named terminal: the shell is hung up and killed, and its
transcript is discarded. This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Delete(cmd.Context(), tools.DeleteRequest{Name: args[0]})
	if err != nil {
		return err
	}
	return printResult(deleteJsonFlag, resp, tools.FormatDelete(resp), resp.Success)
}
