package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/config"
	"github.com/schovi/termtools/internal/logging"
)

// Version is set at build time with -ldflags "-X github.com/schovi/termtools/cmd.Version=...".
var Version = "dev"

var (
	cfg    *config.Config
	logger = zap.NewNop()

	socketDirFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "termtools",
	Short: "Named terminal sessions for AI agents",
	Long: `termtools keeps named, long-lived shell sessions and lets AI agents drive them.

Quick start:
  termtools create build                    # Start a named terminal
  termtools exec build "make test"          # Run a command and capture output + exit code
  termtools send dev "npm run dev"          # Send without waiting
  termtools read dev --wait "ready"         # Wait for new output
  termtools cancel dev                      # Ctrl+C the running command
  termtools delete dev                      # Close the terminal

Sessions live in a background daemon that starts on first use.
Run "termtools mcp" to serve the same operations to an MCP client.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketDirFlag, "socket-dir", "", "Directory holding the daemon socket (default ~/.termtools)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration, applies global flags and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if socketDirFlag != "" {
		loaded.SocketDir = socketDirFlag
	}
	if logLevelFlag != "" {
		loaded.Log.Level = logLevelFlag
	}
	cfg = loaded

	logger, err = logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("termtools " + Version)
	},
}
