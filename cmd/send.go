package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var sendCmd = &cobra.Command{
	Use:   "send <name> <command> [args...]",
	Short: "Send a command to a named terminal",
	Long: `Send a command to a named terminal, creating the terminal if needed.

By default the command is typed with a trailing newline and send returns
immediately. With --capture it waits for the command to finish and prints
its output and exit code (requires a POSIX shell).

With --raw, escape sequences are interpreted and no newline is added:
  \x00-\xFF  Hex byte (e.g., \x03 for Ctrl+C)
  \n         Newline (LF)
  \r         Carriage return (CR)
  \t         Tab
  \e         Escape (ASCII 27)
  \\         Literal backslash

Examples:
  termtools send dev "npm run dev"
  termtools send build --capture "go test ./..."
  termtools send dev --raw "\x03"         # Ctrl+C
  termtools send repl --raw "y"           # answer a prompt without newline`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

var (
	sendCaptureFlag bool
	sendRawFlag     bool
	sendTimeoutFlag time.Duration
	sendShellFlag   string
	sendCwdFlag     string
	sendJsonFlag    bool
)

func init() {
	sendCmd.Flags().BoolVar(&sendCaptureFlag, "capture", false, "Wait for the command and print its output and exit code")
	sendCmd.Flags().BoolVar(&sendRawFlag, "raw", false, "Interpret escape sequences and do not add a newline")
	sendCmd.Flags().DurationVar(&sendTimeoutFlag, "timeout", 0, "Max wait for --capture (default: command_timeout)")
	sendCmd.Flags().StringVar(&sendShellFlag, "shell", "", "Shell to start if the terminal is created")
	sendCmd.Flags().StringVar(&sendCwdFlag, "cwd", "", "Working directory if the terminal is created")
	sendCmd.Flags().BoolVar(&sendJsonFlag, "json", false, "Output as JSON")
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendRawFlag && sendCaptureFlag {
		return fmt.Errorf("--raw and --capture are mutually exclusive")
	}
	return send(cmd, args, sendCaptureFlag, sendRawFlag, sendTimeoutFlag, sendJsonFlag)
}

func send(cmd *cobra.Command, args []string, capture, raw bool, timeout time.Duration, asJSON bool) error {
	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Send(cmd.Context(), tools.SendRequest{
		Name:       args[0],
		Command:    strings.Join(args[1:], " "),
		Capture:    capture,
		Raw:        raw,
		TimeoutMs:  timeout.Milliseconds(),
		ShellPath:  sendShellFlag,
		WorkingDir: sendCwdFlag,
	})
	if err != nil {
		return err
	}
	return printResult(asJSON, resp, tools.FormatSend(resp), resp.Success)
}
