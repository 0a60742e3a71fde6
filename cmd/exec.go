package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <name> <command> [args...]",
	Short: "Run a command and print its output and exit code",
	Long: `Run a command in a named terminal and wait for it to finish.

Same as "send --capture". The terminal is created if needed. Output capture
needs a POSIX shell; other terminals receive the command without capture.
The process exits non-zero when the command fails or times out.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

var (
	execTimeoutFlag time.Duration
	execJsonFlag    bool
)

func init() {
	execCmd.Flags().DurationVar(&execTimeoutFlag, "timeout", 0, "Max wait (default: command_timeout)")
	execCmd.Flags().BoolVar(&execJsonFlag, "json", false, "Output as JSON")
}

func runExec(cmd *cobra.Command, args []string) error {
	return send(cmd, args, true, false, execTimeoutFlag, execJsonFlag)
}
