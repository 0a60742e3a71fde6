// Package daemon exposes a tools.Backend over a unix socket so terminal
// sessions outlive the short-lived processes that drive them.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/tools"
)

type Server struct {
	backend   tools.Backend
	socketDir string
	log       *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	conns    sync.WaitGroup
}

type ServerOption func(*Server)

func WithSocketDir(dir string) ServerOption {
	return func(s *Server) {
		s.socketDir = dir
	}
}

func WithLogger(log *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

func NewServer(backend tools.Backend, opts ...ServerOption) (*Server, error) {
	s := &Server{
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.socketDir == "" {
		dir, err := DefaultSocketDir()
		if err != nil {
			return nil, err
		}
		s.socketDir = dir
	}
	if err := os.MkdirAll(s.socketDir, 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// DefaultSocketDir is ~/.termtools.
func DefaultSocketDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(homeDir, ".termtools"), nil
}

func SocketPath(socketDir string) string {
	return filepath.Join(socketDir, SocketName)
}

func (s *Server) socketPath() string {
	return SocketPath(s.socketDir)
}

// Start serves requests until Shutdown is called.
func (s *Server) Start() error {
	sockPath := s.socketPath()
	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()
	s.log.Info("daemon listening", zap.String("socket", sockPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections, cancels in-flight requests and
// waits for their handlers to return.
func (s *Server) Shutdown() {
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()

	s.conns.Wait()
	os.Remove(s.socketPath())
	s.log.Info("daemon stopped")
}

type Request struct {
	Action      string `json:"action"`
	Name        string `json:"name,omitempty"`
	NewName     string `json:"new_name,omitempty"`
	Command     string `json:"command,omitempty"`
	Capture     bool   `json:"capture,omitempty"`
	Raw         bool   `json:"raw,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
	ShellPath   string `json:"shell_path,omitempty"`
	WorkingDir  string `json:"working_dir,omitempty"`
	Lines       int    `json:"lines,omitempty"`
	WaitPattern string `json:"wait_pattern,omitempty"`
	SettleMs    int    `json:"settle_ms,omitempty"`
}

type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

var errUnknownAction = errors.New("unknown action")

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.sendResponse(conn, Response{Success: false, Error: err.Error()})
		return
	}

	data, err := s.dispatch(s.ctx, req)
	if err != nil {
		s.log.Warn("request failed", zap.String("action", req.Action), zap.String("name", req.Name), zap.Error(err))
		s.sendResponse(conn, Response{Success: false, Error: err.Error()})
		return
	}
	s.sendResponse(conn, Response{Success: true, Data: data})
}

func (s *Server) dispatch(ctx context.Context, req Request) (interface{}, error) {
	s.log.Debug("request", zap.String("action", req.Action), zap.String("name", req.Name))

	switch req.Action {
	case "ping":
		return "pong", nil
	case "list":
		return s.backend.List(ctx)
	case "create":
		return s.backend.Create(ctx, tools.CreateRequest{
			Name:       req.Name,
			ShellPath:  req.ShellPath,
			WorkingDir: req.WorkingDir,
		})
	case "send":
		return s.backend.Send(ctx, tools.SendRequest{
			Name:       req.Name,
			Command:    req.Command,
			Capture:    req.Capture,
			Raw:        req.Raw,
			TimeoutMs:  req.TimeoutMs,
			ShellPath:  req.ShellPath,
			WorkingDir: req.WorkingDir,
		})
	case "delete":
		return s.backend.Delete(ctx, tools.DeleteRequest{Name: req.Name})
	case "rename":
		return s.backend.Rename(ctx, tools.RenameRequest{OldName: req.Name, NewName: req.NewName})
	case "cancel":
		return s.backend.Cancel(ctx, tools.CancelRequest{Name: req.Name})
	case "read":
		return s.backend.Read(ctx, tools.ReadRequest{
			Name:        req.Name,
			Lines:       req.Lines,
			WaitPattern: req.WaitPattern,
			SettleMs:    req.SettleMs,
			TimeoutMs:   req.TimeoutMs,
		})
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, req.Action)
	}
}

func (s *Server) sendResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}
