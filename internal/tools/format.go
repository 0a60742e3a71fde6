package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const listHint = "No named terminals found. Use send_command to create and execute commands."

func FormatList(resp *ListResponse) string {
	if len(resp.Sessions) == 0 {
		return listHint
	}
	items := make([]string, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		items = append(items, fmt.Sprintf("- **%s - shell integration: %t**", s.Name, s.ShellIntegration))
	}
	return "Named Terminals:\n\n" + strings.Join(items, "\n\n")
}

func FormatCreate(resp *CreateResponse) string {
	switch {
	case resp.Success:
		return fmt.Sprintf("Successfully created terminal: %s", resp.Name)
	case resp.Reason == ReasonExists:
		return fmt.Sprintf("Terminal '%s' already exists.", resp.Name)
	default:
		return fmt.Sprintf("Failed to create terminal '%s': %s", resp.Name, resp.Message)
	}
}

func FormatSend(resp *SendResponse) string {
	if resp.Reason != "" {
		return fmt.Sprintf("Failed to send command to terminal '%s': %s", resp.Name, resp.Message)
	}

	created := ""
	if resp.Created {
		created = " (terminal created)"
	}
	r := resp.Result

	if !resp.Capture {
		if !r.Succeeded {
			return fmt.Sprintf("Failed to send command to terminal '%s': %s", resp.Name, r.Error)
		}
		return fmt.Sprintf("Command sent to terminal '%s': %s%s", resp.Name, resp.Command, created)
	}

	if !r.Captured && r.ExitCode == nil && !r.TimedOut {
		if !r.Succeeded {
			return fmt.Sprintf("Failed to execute command in terminal '%s': %s", resp.Name, r.Error)
		}
		return fmt.Sprintf("Command sent to terminal '%s': %s%s\n\n%s", resp.Name, resp.Command, created, r.Output)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Command executed in terminal '%s': %s%s", resp.Name, resp.Command, created)
	b.WriteString("\n\n**Execution Details:**")
	fmt.Fprintf(&b, "\n- Success: %t", r.Succeeded)
	if r.ExitCode != nil {
		fmt.Fprintf(&b, "\n- Exit Code: %d", *r.ExitCode)
	} else {
		b.WriteString("\n- Exit Code: unknown")
	}
	fmt.Fprintf(&b, "\n- Execution Time: %dms", r.ElapsedMillis)
	if r.TimedOut {
		b.WriteString("\n- Timed Out: true")
	}
	if r.Output != "" {
		fmt.Fprintf(&b, "\n\n**Output:**\n```\n%s\n```", r.Output)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\n\n**Error/Warnings:**\n```\n%s\n```", r.Error)
	}
	return b.String()
}

func FormatDelete(resp *DeleteResponse) string {
	if resp.Success {
		return fmt.Sprintf("Successfully deleted terminal: %s", resp.Name)
	}
	return fmt.Sprintf("Terminal '%s' not found.", resp.Name)
}

func FormatRename(resp *RenameResponse) string {
	switch {
	case resp.Success:
		return fmt.Sprintf("Successfully renamed terminal from '%s' to '%s'.", resp.OldName, resp.NewName)
	case resp.Reason == ReasonNotFound:
		return fmt.Sprintf("Terminal '%s' not found.", resp.OldName)
	case resp.Reason == ReasonExists:
		return fmt.Sprintf("Terminal '%s' already exists.", resp.NewName)
	default:
		return fmt.Sprintf("Failed to rename terminal '%s': %s", resp.OldName, resp.Message)
	}
}

type cancelReport struct {
	Succeeded bool   `json:"succeeded"`
	Command   string `json:"command"`
	Error     string `json:"error,omitempty"`
}

func FormatCancel(resp *CancelResponse) string {
	if resp.Reason == ReasonNotFound {
		return fmt.Sprintf("Terminal '%s' not found.", resp.Name)
	}
	report := cancelReport{Succeeded: resp.Success, Command: resp.Command, Error: resp.Message}
	if report.Command == "" {
		report.Command = "unknown"
	}
	data, _ := json.Marshal(report)
	return string(data)
}

func FormatRead(resp *ReadResponse) string {
	if resp.Reason == ReasonNotFound {
		return fmt.Sprintf("Terminal '%s' not found.", resp.Name)
	}

	var b strings.Builder
	info := resp.Session
	fmt.Fprintf(&b, "Terminal: %s\n", resp.Name)
	if info != nil {
		fmt.Fprintf(&b, "Created: %s\n", info.CreatedAt.Format(time.RFC1123))
		fmt.Fprintf(&b, "Status: Active\n")
		fmt.Fprintf(&b, "Shell integration: %t\n", info.ShellIntegration)
	}

	if run := resp.LastRun; run != nil {
		fmt.Fprintf(&b, "\nLast command: %s\n", run.Command)
		fmt.Fprintf(&b, "Executed: %s\n", run.At.Format(time.RFC1123))
		if run.ExitCode != nil {
			fmt.Fprintf(&b, "Exit code: %d\n", *run.ExitCode)
		}
		if run.Captured {
			fmt.Fprintf(&b, "\nLast Captured Output:\n```\n%s\n```\n", run.Output)
		} else {
			b.WriteString("\nThe last command was sent without output capture.\n")
		}
	} else {
		b.WriteString("\nLast command: None\n")
	}

	title := fmt.Sprintf("Recent Terminal Output (last %d lines)", resp.Lines)
	if resp.Waited {
		title = "New Terminal Output"
	}
	fmt.Fprintf(&b, "\n%s:\n```\n%s\n```", title, resp.Screen)
	if resp.Message != "" {
		fmt.Fprintf(&b, "\n\nNote: %s", resp.Message)
	}
	return b.String()
}
