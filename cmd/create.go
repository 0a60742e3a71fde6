package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new named terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var (
	createShellFlag string
	createCwdFlag   string
	createJsonFlag  bool
)

func init() {
	createCmd.Flags().StringVar(&createShellFlag, "shell", "", "Shell to start (default: configured shell, then $SHELL)")
	createCmd.Flags().StringVar(&createCwdFlag, "cwd", "", "Working directory")
	createCmd.Flags().BoolVar(&createJsonFlag, "json", false, "Output as JSON")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Create(cmd.Context(), tools.CreateRequest{
		Name:       args[0],
		ShellPath:  createShellFlag,
		WorkingDir: createCwdFlag,
	})
	if err != nil {
		return err
	}
	return printResult(createJsonFlag, resp, tools.FormatCreate(resp), resp.Success)
}
