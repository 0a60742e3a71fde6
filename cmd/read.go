package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/schovi/termtools/internal/tools"
)

var readCmd = &cobra.Command{
	Use:   "read <name>",
	Short: "Show a terminal's last command and recent output",
	Long: `Show a terminal's last command, its captured output and the most recent
screen lines.

By default returns immediately.
Use --wait or --settle to block until new output arrives.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readLinesFlag   int
	readWaitFlag    string
	readSettleFlag  int
	readTimeoutFlag time.Duration
	readJsonFlag    bool
)

func init() {
	readCmd.Flags().IntVar(&readLinesFlag, "lines", tools.DefaultReadLines, "Number of recent screen lines")
	readCmd.Flags().StringVar(&readWaitFlag, "wait", "", "Wait for new output matching this regex")
	readCmd.Flags().IntVar(&readSettleFlag, "settle", 0, "Wait for N ms of silence after new output")
	readCmd.Flags().DurationVar(&readTimeoutFlag, "timeout", tools.DefaultReadTimeout, "Max wait time (for blocking modes)")
	readCmd.Flags().BoolVar(&readJsonFlag, "json", false, "Output as JSON")
}

func runRead(cmd *cobra.Command, args []string) error {
	if readWaitFlag != "" && readSettleFlag > 0 {
		return fmt.Errorf("--wait and --settle are mutually exclusive")
	}
	if readLinesFlag < 0 {
		return fmt.Errorf("--lines requires a positive integer")
	}

	client, err := daemonClient()
	if err != nil {
		return err
	}

	resp, err := client.Read(cmd.Context(), tools.ReadRequest{
		Name:        args[0],
		Lines:       readLinesFlag,
		WaitPattern: readWaitFlag,
		SettleMs:    readSettleFlag,
		TimeoutMs:   readTimeoutFlag.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return printResult(readJsonFlag, resp, tools.FormatRead(resp), resp.Success)
}
