package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schovi/termtools/internal/executor"
	"github.com/schovi/termtools/internal/host/hosttest"
	"github.com/schovi/termtools/internal/session"
	"github.com/schovi/termtools/internal/tools"
)

func connect(t *testing.T, structured bool) (*mcpsdk.ClientSession, *hosttest.Host) {
	t.Helper()
	ctx := context.Background()

	h := hosttest.NewHost(structured)
	reg := session.NewRegistry(h)
	t.Cleanup(reg.Close)
	svc := tools.NewService(reg, executor.New(h, executor.WithTimeout(2*time.Second)))

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	srv := NewServer(svc, "test")
	ss, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return cs, h
}

func callText(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	cs, _ := connect(t, true)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_terminals",
		"create_terminal",
		"send_command",
		"execute_command_with_output",
		"delete_terminal",
		"rename_terminal",
		"cancel_command",
		"read_terminal",
	}, names)
}

func TestToolFlow(t *testing.T) {
	cs, h := connect(t, true)

	text, isErr := callText(t, cs, "list_terminals", map[string]any{})
	assert.False(t, isErr)
	assert.Contains(t, text, "No named terminals found")

	text, _ = callText(t, cs, "create_terminal", map[string]any{"name": "build"})
	assert.Equal(t, "Successfully created terminal: build", text)

	text, _ = callText(t, cs, "create_terminal", map[string]any{"name": "build"})
	assert.Equal(t, "Terminal 'build' already exists.", text)

	text, _ = callText(t, cs, "execute_command_with_output", map[string]any{"name": "build", "command": "echo HELLO"})
	assert.Contains(t, text, "Command executed in terminal 'build': echo HELLO")
	assert.Contains(t, text, "- Exit Code: 0")
	assert.Contains(t, text, "**Output:**\n```\nHELLO\n```")

	text, _ = callText(t, cs, "send_command", map[string]any{"name": "dev", "command": "npm start"})
	assert.Equal(t, "Command sent to terminal 'dev': npm start (terminal created)", text)
	require.Len(t, h.Spawned(), 2)
	assert.Equal(t, []string{"npm start\n"}, h.Spawned()[1].Sent())

	text, _ = callText(t, cs, "rename_terminal", map[string]any{"old_name": "dev", "new_name": "server"})
	assert.Equal(t, "Successfully renamed terminal from 'dev' to 'server'.", text)

	text, _ = callText(t, cs, "list_terminals", map[string]any{})
	assert.Contains(t, text, "- **build - shell integration: true**")
	assert.Contains(t, text, "- **server - shell integration: true**")

	text, _ = callText(t, cs, "read_terminal", map[string]any{"name": "build"})
	assert.Contains(t, text, "Last command: echo HELLO")
	assert.Contains(t, text, "Last Captured Output:\n```\nHELLO\n```")

	text, _ = callText(t, cs, "delete_terminal", map[string]any{"name": "server"})
	assert.Equal(t, "Successfully deleted terminal: server", text)

	text, _ = callText(t, cs, "delete_terminal", map[string]any{"name": "server"})
	assert.Equal(t, "Terminal 'server' not found.", text)
}

func TestSendCommandBase64(t *testing.T) {
	cs, h := connect(t, false)

	encoded := base64.StdEncoding.EncodeToString([]byte(`echo "quoted"`))
	text, isErr := callText(t, cs, "send_command", map[string]any{"name": "b", "command_base64": encoded})
	assert.False(t, isErr)
	assert.Contains(t, text, "Command sent to terminal 'b'")
	assert.Equal(t, []string{"echo \"quoted\"\n"}, h.Spawned()[0].Sent())
}

func TestSendCommandRaw(t *testing.T) {
	cs, h := connect(t, false)

	_, isErr := callText(t, cs, "send_command", map[string]any{"name": "r", "command": `\x03`, "raw": true})
	assert.False(t, isErr)
	assert.Equal(t, []string{"\x03"}, h.Spawned()[0].Sent())
}

func TestSendCommandCreatesWithShellAndDir(t *testing.T) {
	cs, h := connect(t, false)

	text, isErr := callText(t, cs, "send_command", map[string]any{
		"name":        "web",
		"command":     "pwd",
		"shell_path":  "/bin/bash",
		"working_dir": "/tmp",
	})
	assert.False(t, isErr, text)
	require.Len(t, h.Spawned(), 1)
	assert.Equal(t, "/bin/bash", h.Spawned()[0].Shell())
	assert.Equal(t, "/tmp", h.Spawned()[0].WorkingDir())

	// An existing terminal keeps its shell.
	_, isErr = callText(t, cs, "send_command", map[string]any{"name": "web", "command": "ls", "shell_path": "/bin/zsh"})
	assert.False(t, isErr)
	assert.Len(t, h.Spawned(), 1)

	_, isErr = callText(t, cs, "execute_command_with_output", map[string]any{
		"name":        "api",
		"command":     "pwd",
		"shell_path":  "/bin/sh",
		"working_dir": "/var",
	})
	assert.False(t, isErr)
	require.Len(t, h.Spawned(), 2)
	assert.Equal(t, "/bin/sh", h.Spawned()[1].Shell())
	assert.Equal(t, "/var", h.Spawned()[1].WorkingDir())
}

func TestSendSchemasDeclareCreateOptions(t *testing.T) {
	cs, _ := connect(t, true)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	for _, tool := range res.Tools {
		if tool.Name != "send_command" && tool.Name != "execute_command_with_output" {
			continue
		}
		schema, err := json.Marshal(tool.InputSchema)
		require.NoError(t, err)
		assert.Contains(t, string(schema), `"shell_path"`, tool.Name)
		assert.Contains(t, string(schema), `"working_dir"`, tool.Name)
	}
}

func TestCancelCommand(t *testing.T) {
	cs, _ := connect(t, true)

	text, _ := callText(t, cs, "cancel_command", map[string]any{"name": "nope"})
	assert.Equal(t, "Terminal 'nope' not found.", text)

	callText(t, cs, "create_terminal", map[string]any{"name": "idle"})
	text, _ = callText(t, cs, "cancel_command", map[string]any{"name": "idle"})
	assert.JSONEq(t, `{"succeeded":true,"command":"unknown"}`, text)
}

func TestCaptureOnBasicTerminal(t *testing.T) {
	cs, _ := connect(t, false)

	text, isErr := callText(t, cs, "execute_command_with_output", map[string]any{"name": "plain", "command": "ls"})
	assert.False(t, isErr)
	assert.Contains(t, text, "output could not be captured")
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		b64     string
		want    string
		wantErr string
	}{
		{name: "plain", command: "ls -la", want: "ls -la"},
		{name: "base64", b64: base64.StdEncoding.EncodeToString([]byte("a\nb")), want: "a\nb"},
		{name: "missing", wantErr: "required"},
		{name: "both", command: "x", b64: "eA==", wantErr: "mutually exclusive"},
		{name: "bad base64", b64: "!!!", wantErr: "decode command_base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeCommand(tt.command, tt.b64)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMissingCommandIsToolError(t *testing.T) {
	cs, _ := connect(t, true)

	text, isErr := callText(t, cs, "send_command", map[string]any{"name": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, "command or command_base64 is required")
}
