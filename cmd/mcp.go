package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/mcp"
	"github.com/schovi/termtools/internal/tools"
)

var mcpDaemonFlag bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the terminal tools over MCP on stdin/stdout",
	Long: `Serve the terminal tools to an MCP client over stdin/stdout.

By default terminals live inside this process and end with it.
With --daemon they live in the shared daemon and are visible to the CLI.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpDaemonFlag, "daemon", false, "Keep terminals in the shared daemon")
}

func runMCP(cmd *cobra.Command, args []string) error {
	var backend tools.Backend
	if mcpDaemonFlag {
		client, err := daemonClient()
		if err != nil {
			return err
		}
		backend = client
	} else {
		stack, err := newLocalStack()
		if err != nil {
			return err
		}
		defer stack.Close()
		backend = stack.service
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(backend, Version, mcp.WithLogger(logger.Named("mcp")))
	return server.Run(ctx)
}
