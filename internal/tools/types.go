// Package tools implements the operations an agent can invoke on named
// terminals and renders their results as text.
package tools

import (
	"context"
	"time"

	"github.com/schovi/termtools/internal/executor"
)

// Backend is implemented in-process by Service and remotely by the daemon
// client. Not-found, conflict and validation failures are reported in the
// response; errors are reserved for failures of the backend itself.
type Backend interface {
	List(ctx context.Context) (*ListResponse, error)
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error)
	Rename(ctx context.Context, req RenameRequest) (*RenameResponse, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error)
	Read(ctx context.Context, req ReadRequest) (*ReadResponse, error)
}

// Reasons attached to rejected requests.
const (
	ReasonNotFound     = "not_found"
	ReasonExists       = "exists"
	ReasonInvalidName  = "invalid_name"
	ReasonInvalidInput = "invalid_input"
)

type SessionInfo struct {
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	ShellIntegration bool       `json:"shell_integration"`
	PID              int        `json:"pid"`
	Shell            string     `json:"shell,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastCommand      string     `json:"last_command,omitempty"`
	LastExecution    *time.Time `json:"last_execution,omitempty"`
}

type ListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type CreateRequest struct {
	Name       string `json:"name"`
	ShellPath  string `json:"shell_path,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

type CreateResponse struct {
	Success bool         `json:"success"`
	Name    string       `json:"name"`
	Reason  string       `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
	Session *SessionInfo `json:"session,omitempty"`
}

type SendRequest struct {
	Name       string `json:"name"`
	Command    string `json:"command"`
	Capture    bool   `json:"capture,omitempty"`
	Raw        bool   `json:"raw,omitempty"`
	TimeoutMs  int64  `json:"timeout_ms,omitempty"`
	ShellPath  string `json:"shell_path,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

type SendResponse struct {
	Success bool            `json:"success"`
	Name    string          `json:"name"`
	Command string          `json:"command"`
	Created bool            `json:"created"`
	Capture bool            `json:"capture"`
	Result  executor.Result `json:"result"`
	// Reason and Message are set when the request was rejected before
	// anything was sent.
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type DeleteRequest struct {
	Name string `json:"name"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

type RenameRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type RenameResponse struct {
	Success bool   `json:"success"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type CancelRequest struct {
	Name string `json:"name"`
}

type CancelResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Command string `json:"command,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type ReadRequest struct {
	Name        string `json:"name"`
	Lines       int    `json:"lines,omitempty"`
	WaitPattern string `json:"wait_pattern,omitempty"`
	SettleMs    int    `json:"settle_ms,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
}

type ReadResponse struct {
	Success  bool         `json:"success"`
	Name     string       `json:"name"`
	Reason   string       `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
	Session  *SessionInfo `json:"session,omitempty"`
	LastRun  *LastRun     `json:"last_run,omitempty"`
	Screen   string       `json:"screen"`
	Lines    int          `json:"lines"`
	Waited   bool         `json:"waited,omitempty"`
	Position int64        `json:"position"`
}

type LastRun struct {
	Command  string    `json:"command"`
	Output   string    `json:"output,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Captured bool      `json:"captured"`
	At       time.Time `json:"at"`
}
