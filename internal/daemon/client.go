package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/schovi/termtools/internal/executor"
	"github.com/schovi/termtools/internal/tools"
)

// Client talks to a running daemon and implements tools.Backend.
type Client struct {
	socketPath     string
	commandTimeout time.Duration
	daemonArgs     []string
}

var _ tools.Backend = (*Client)(nil)

type ClientOption func(*Client)

// WithCommandTimeout tells the client how long the daemon may wait for a
// captured command that does not carry its own timeout.
func WithCommandTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.commandTimeout = d
	}
}

// WithDaemonArgs sets extra arguments passed to "daemon" when EnsureDaemon
// has to start one.
func WithDaemonArgs(args ...string) ClientOption {
	return func(c *Client) {
		c.daemonArgs = args
	}
}

func NewClient(socketDir string, opts ...ClientOption) *Client {
	return NewClientWithSocketPath(SocketPath(socketDir), opts...)
}

func NewClientWithSocketPath(path string, opts ...ClientOption) *Client {
	c := &Client{
		socketPath:     path,
		commandTimeout: executor.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureDaemon starts a daemon from the current executable unless one is
// already answering on the socket.
func (c *Client) EnsureDaemon() error {
	if c.Ping() {
		return nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}

	cmd := exec.Command(exePath, append([]string{"daemon"}, c.daemonArgs...)...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	go cmd.Wait() //nolint:errcheck

	deadline := time.Now().Add(DaemonStartTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(DaemonPollInterval)
		if c.Ping() {
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start")
}

func (c *Client) Ping() bool {
	resp, err := c.send(context.Background(), Request{Action: "ping"})
	return err == nil && resp.Success
}

func (c *Client) List(ctx context.Context) (*tools.ListResponse, error) {
	var out tools.ListResponse
	return &out, c.call(ctx, Request{Action: "list"}, &out)
}

func (c *Client) Create(ctx context.Context, req tools.CreateRequest) (*tools.CreateResponse, error) {
	var out tools.CreateResponse
	return &out, c.call(ctx, Request{
		Action:     "create",
		Name:       req.Name,
		ShellPath:  req.ShellPath,
		WorkingDir: req.WorkingDir,
	}, &out)
}

// Send forwards req. A capture without its own timeout carries the client's
// command timeout, so the daemon stops waiting before the connection does.
func (c *Client) Send(ctx context.Context, req tools.SendRequest) (*tools.SendResponse, error) {
	if req.Capture && req.TimeoutMs <= 0 {
		req.TimeoutMs = c.commandTimeout.Milliseconds()
	}
	var out tools.SendResponse
	return &out, c.call(ctx, Request{
		Action:     "send",
		Name:       req.Name,
		Command:    req.Command,
		Capture:    req.Capture,
		Raw:        req.Raw,
		TimeoutMs:  req.TimeoutMs,
		ShellPath:  req.ShellPath,
		WorkingDir: req.WorkingDir,
	}, &out)
}

func (c *Client) Delete(ctx context.Context, req tools.DeleteRequest) (*tools.DeleteResponse, error) {
	var out tools.DeleteResponse
	return &out, c.call(ctx, Request{Action: "delete", Name: req.Name}, &out)
}

func (c *Client) Rename(ctx context.Context, req tools.RenameRequest) (*tools.RenameResponse, error) {
	var out tools.RenameResponse
	return &out, c.call(ctx, Request{Action: "rename", Name: req.OldName, NewName: req.NewName}, &out)
}

func (c *Client) Cancel(ctx context.Context, req tools.CancelRequest) (*tools.CancelResponse, error) {
	var out tools.CancelResponse
	return &out, c.call(ctx, Request{Action: "cancel", Name: req.Name}, &out)
}

func (c *Client) Read(ctx context.Context, req tools.ReadRequest) (*tools.ReadResponse, error) {
	var out tools.ReadResponse
	return &out, c.call(ctx, Request{
		Action:      "read",
		Name:        req.Name,
		Lines:       req.Lines,
		WaitPattern: req.WaitPattern,
		SettleMs:    req.SettleMs,
		TimeoutMs:   req.TimeoutMs,
	}, &out)
}

func (c *Client) call(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	if resp.Data == nil {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// clientResponse mirrors Response but defers decoding of Data to the caller.
type clientResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) send(ctx context.Context, req Request) (*clientResponse, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.deadlineFor(req))
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, err
	}

	var resp clientResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) deadlineFor(req Request) time.Duration {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 && req.Action == "send" && req.Capture {
		timeout = c.commandTimeout
	}
	return max(ClientDeadline, timeout+DeadlineMargin)
}
