package mcp

import (
	"context"
	"encoding/base64"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/tools"
)

type ListArgs struct{}

type CreateArgs struct {
	Name       string `json:"name" jsonschema:"Unique terminal name, e.g. 'build' or 'dev-server'"`
	ShellPath  string `json:"shell_path,omitempty" jsonschema:"Shell to start. Defaults to the configured shell."`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"Directory the shell starts in"`
}

type SendArgs struct {
	Name          string `json:"name" jsonschema:"Terminal name. The terminal is created if it does not exist."`
	Command       string `json:"command,omitempty" jsonschema:"Command to send. Mutually exclusive with command_base64."`
	CommandBase64 string `json:"command_base64,omitempty" jsonschema:"Command as base64, for input that is hard to escape in JSON. Mutually exclusive with command."`
	Capture       bool   `json:"capture,omitempty" jsonschema:"Wait for the command to finish and return its output and exit code"`
	Raw           bool   `json:"raw,omitempty" jsonschema:"Interpret escape sequences such as \x03 (Ctrl+C) and do not add a newline. Cannot be combined with capture."`
	TimeoutMs     int64  `json:"timeout_ms,omitempty" jsonschema:"How long to wait for a captured command, in milliseconds"`
	ShellPath     string `json:"shell_path,omitempty" jsonschema:"Shell to start if the terminal has to be created"`
	WorkingDir    string `json:"working_dir,omitempty" jsonschema:"Directory the shell starts in if the terminal has to be created"`
}

type ExecuteArgs struct {
	Name          string `json:"name" jsonschema:"Terminal name. The terminal is created if it does not exist."`
	Command       string `json:"command,omitempty" jsonschema:"Command to run. Mutually exclusive with command_base64."`
	CommandBase64 string `json:"command_base64,omitempty" jsonschema:"Command as base64. Mutually exclusive with command."`
	TimeoutMs     int64  `json:"timeout_ms,omitempty" jsonschema:"How long to wait for the command, in milliseconds"`
	ShellPath     string `json:"shell_path,omitempty" jsonschema:"Shell to start if the terminal has to be created"`
	WorkingDir    string `json:"working_dir,omitempty" jsonschema:"Directory the shell starts in if the terminal has to be created"`
}

type NameArgs struct {
	Name string `json:"name" jsonschema:"Terminal name"`
}

type RenameArgs struct {
	OldName string `json:"old_name" jsonschema:"Current terminal name"`
	NewName string `json:"new_name" jsonschema:"New terminal name"`
}

type ReadArgs struct {
	Name        string `json:"name" jsonschema:"Terminal name"`
	Lines       int    `json:"lines,omitempty" jsonschema:"Number of recent screen lines to return (default 40)"`
	WaitPattern string `json:"wait_pattern,omitempty" jsonschema:"Wait until new output matches this regular expression"`
	SettleMs    int    `json:"settle_ms,omitempty" jsonschema:"Wait until new output has been quiet for this many milliseconds"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty" jsonschema:"Maximum time to wait for wait_pattern or settle_ms, in milliseconds"`
}

type handlers struct {
	backend tools.Backend
	log     *zap.Logger
}

func registerTools(s *mcpsdk.Server, h *handlers) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "list_terminals",
		Description: "List all named terminals and whether each supports output capture.",
	}, h.list)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "create_terminal",
		Description: "Create a new named terminal. Fails if a terminal with that name already exists.",
	}, h.create)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "send_command",
		Description: "Send a command to a named terminal, creating the terminal if needed. " +
			"With capture=true, waits for the command to finish and returns its output and exit code. " +
			"Use raw=true for control characters such as \\x03 (Ctrl+C) or answering prompts.",
	}, h.send)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "execute_command_with_output",
		Description: "Run a command in a named terminal and return its output and exit code. " +
			"Creates the terminal if needed. Use for commands that finish; start servers with send_command.",
	}, h.execute)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "delete_terminal",
		Description: "Close a named terminal and end its shell.",
	}, h.delete)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "rename_terminal",
		Description: "Rename a terminal. Fails if the new name is taken.",
	}, h.rename)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "cancel_command",
		Description: "Interrupt the command running in a terminal (Ctrl+C).",
	}, h.cancel)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "read_terminal",
		Description: "Show a terminal's last command, its captured output and the most recent screen lines. " +
			"Set wait_pattern or settle_ms to wait for new output first.",
	}, h.read)
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func (h *handlers) fail(tool string, err error) (*mcpsdk.CallToolResult, any, error) {
	h.log.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	return errorResult(err), nil, nil
}

// decodeCommand picks the command from exactly one of the plain and base64
// fields.
func decodeCommand(command, commandBase64 string) (string, error) {
	if command == "" && commandBase64 == "" {
		return "", fmt.Errorf("command or command_base64 is required")
	}
	if command != "" && commandBase64 != "" {
		return "", fmt.Errorf("command and command_base64 are mutually exclusive")
	}
	if commandBase64 == "" {
		return command, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(commandBase64)
	if err != nil {
		return "", fmt.Errorf("decode command_base64: %w", err)
	}
	return string(decoded), nil
}

func (h *handlers) list(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.List(ctx)
	if err != nil {
		return h.fail("list_terminals", err)
	}
	return textResult(tools.FormatList(resp)), nil, nil
}

func (h *handlers) create(ctx context.Context, _ *mcpsdk.CallToolRequest, args CreateArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Create(ctx, tools.CreateRequest{
		Name:       args.Name,
		ShellPath:  args.ShellPath,
		WorkingDir: args.WorkingDir,
	})
	if err != nil {
		return h.fail("create_terminal", err)
	}
	return textResult(tools.FormatCreate(resp)), nil, nil
}

func (h *handlers) send(ctx context.Context, _ *mcpsdk.CallToolRequest, args SendArgs) (*mcpsdk.CallToolResult, any, error) {
	command, err := decodeCommand(args.Command, args.CommandBase64)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return h.dispatch(ctx, "send_command", tools.SendRequest{
		Name:       args.Name,
		Command:    command,
		Capture:    args.Capture,
		Raw:        args.Raw,
		TimeoutMs:  args.TimeoutMs,
		ShellPath:  args.ShellPath,
		WorkingDir: args.WorkingDir,
	})
}

func (h *handlers) execute(ctx context.Context, _ *mcpsdk.CallToolRequest, args ExecuteArgs) (*mcpsdk.CallToolResult, any, error) {
	command, err := decodeCommand(args.Command, args.CommandBase64)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return h.dispatch(ctx, "execute_command_with_output", tools.SendRequest{
		Name:       args.Name,
		Command:    command,
		Capture:    true,
		TimeoutMs:  args.TimeoutMs,
		ShellPath:  args.ShellPath,
		WorkingDir: args.WorkingDir,
	})
}

func (h *handlers) dispatch(ctx context.Context, tool string, req tools.SendRequest) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Send(ctx, req)
	if err != nil {
		return h.fail(tool, err)
	}
	return textResult(tools.FormatSend(resp)), nil, nil
}

func (h *handlers) delete(ctx context.Context, _ *mcpsdk.CallToolRequest, args NameArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Delete(ctx, tools.DeleteRequest{Name: args.Name})
	if err != nil {
		return h.fail("delete_terminal", err)
	}
	return textResult(tools.FormatDelete(resp)), nil, nil
}

func (h *handlers) rename(ctx context.Context, _ *mcpsdk.CallToolRequest, args RenameArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Rename(ctx, tools.RenameRequest{OldName: args.OldName, NewName: args.NewName})
	if err != nil {
		return h.fail("rename_terminal", err)
	}
	return textResult(tools.FormatRename(resp)), nil, nil
}

func (h *handlers) cancel(ctx context.Context, _ *mcpsdk.CallToolRequest, args NameArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Cancel(ctx, tools.CancelRequest{Name: args.Name})
	if err != nil {
		return h.fail("cancel_command", err)
	}
	return textResult(tools.FormatCancel(resp)), nil, nil
}

func (h *handlers) read(ctx context.Context, _ *mcpsdk.CallToolRequest, args ReadArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := h.backend.Read(ctx, tools.ReadRequest{
		Name:        args.Name,
		Lines:       args.Lines,
		WaitPattern: args.WaitPattern,
		SettleMs:    args.SettleMs,
		TimeoutMs:   args.TimeoutMs,
	})
	if err != nil {
		return h.fail("read_terminal", err)
	}
	return textResult(tools.FormatRead(resp)), nil, nil
}
