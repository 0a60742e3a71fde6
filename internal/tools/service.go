package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/escape"
	"github.com/schovi/termtools/internal/executor"
	"github.com/schovi/termtools/internal/session"
	"github.com/schovi/termtools/internal/vterm"
	"github.com/schovi/termtools/internal/wait"
)

const (
	DefaultReadLines   = 40
	DefaultReadTimeout = 10 * time.Second
	// Only the tail of a transcript is rendered for read.
	readWindow = 64 * 1024
	readCols   = 200
)

// Service runs the tool operations against an in-process registry.
type Service struct {
	registry *session.Registry
	executor *executor.Executor
	defaults session.CreateOptions
	log      *zap.Logger
}

type Option func(*Service)

// WithDefaults sets the shell and working directory used when a request
// does not name one.
func WithDefaults(shellPath, workingDir string) Option {
	return func(s *Service) {
		s.defaults = session.CreateOptions{ShellPath: shellPath, WorkingDir: workingDir}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(registry *session.Registry, exec *executor.Executor, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		executor: exec,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) createOptions(shellPath, workingDir string) session.CreateOptions {
	opts := s.defaults
	if shellPath != "" {
		opts.ShellPath = shellPath
	}
	if workingDir != "" {
		opts.WorkingDir = workingDir
	}
	return opts
}

func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	sessions := s.registry.List()
	resp := &ListResponse{Sessions: make([]SessionInfo, 0, len(sessions))}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, describe(sess))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	sess, err := s.registry.Create(req.Name, s.createOptions(req.ShellPath, req.WorkingDir))
	switch {
	case errors.Is(err, session.ErrExists), errors.Is(err, session.ErrInvalidName):
		return &CreateResponse{Name: req.Name, Reason: reasonOf(err), Message: err.Error()}, nil
	case err != nil:
		return nil, err
	}
	sess.Terminal().Show()
	info := describe(sess)
	s.log.Info("terminal created", zap.String("name", req.Name), zap.String("kind", info.Kind))
	return &CreateResponse{Success: true, Name: req.Name, Session: &info}, nil
}

func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	resp := &SendResponse{Name: req.Name, Command: req.Command, Capture: req.Capture}
	if req.Raw && req.Capture {
		resp.Reason = ReasonInvalidInput
		resp.Message = "raw input cannot be combined with output capture"
		return resp, nil
	}

	text := req.Command
	if req.Raw {
		interpreted, err := escape.Interpret(req.Command)
		if err != nil {
			resp.Reason = ReasonInvalidInput
			resp.Message = fmt.Sprintf("escape sequence error: %v", err)
			return resp, nil
		}
		text = interpreted
	}

	sess, created, err := s.registry.GetOrCreate(req.Name, s.createOptions(req.ShellPath, req.WorkingDir))
	if errors.Is(err, session.ErrInvalidName) {
		resp.Reason = ReasonInvalidName
		resp.Message = err.Error()
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	resp.Created = created

	switch {
	case req.Raw:
		resp.Result = s.executor.SendRaw(ctx, sess, text)
	case req.Capture:
		resp.Result = s.executor.Execute(ctx, sess, req.Command, time.Duration(req.TimeoutMs)*time.Millisecond)
	default:
		resp.Result = s.executor.Send(ctx, sess, req.Command)
	}
	resp.Success = resp.Result.Succeeded
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error) {
	deleted := s.registry.Delete(req.Name)
	if deleted {
		s.log.Info("terminal deleted", zap.String("name", req.Name))
	}
	return &DeleteResponse{Success: deleted, Name: req.Name}, nil
}

func (s *Service) Rename(ctx context.Context, req RenameRequest) (*RenameResponse, error) {
	resp := &RenameResponse{OldName: req.OldName, NewName: req.NewName}
	if err := s.registry.Rename(req.OldName, req.NewName); err != nil {
		resp.Reason = reasonOf(err)
		resp.Message = err.Error()
		return resp, nil
	}
	s.log.Info("terminal renamed", zap.String("from", req.OldName), zap.String("to", req.NewName))
	resp.Success = true
	return resp, nil
}

func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	resp := &CancelResponse{Name: req.Name}
	sess, ok := s.registry.Get(req.Name)
	if !ok {
		resp.Reason = ReasonNotFound
		resp.Message = fmt.Sprintf("%v: %q", session.ErrNotFound, req.Name)
		return resp, nil
	}

	result := s.executor.Cancel(ctx, sess)
	resp.Success = result.Succeeded
	resp.Command = result.Command
	resp.Found = result.Command != ""
	resp.Message = result.Error
	return resp, nil
}

// Read reports the session's last run and the tail of its screen. With a
// wait pattern or settle time it first blocks until new output satisfies
// the condition.
func (s *Service) Read(ctx context.Context, req ReadRequest) (*ReadResponse, error) {
	resp := &ReadResponse{Name: req.Name, Lines: req.Lines}
	if resp.Lines <= 0 {
		resp.Lines = DefaultReadLines
	}

	sess, ok := s.registry.Get(req.Name)
	if !ok {
		resp.Reason = ReasonNotFound
		resp.Message = fmt.Sprintf("%v: %q", session.ErrNotFound, req.Name)
		return resp, nil
	}
	sess.Terminal().Show()
	info := describe(sess)
	resp.Session = &info
	if run, ok := sess.LastRun(); ok {
		resp.LastRun = &LastRun{
			Command:  run.Command,
			Output:   run.Output,
			ExitCode: run.ExitCode,
			Captured: run.Captured,
			At:       run.At,
		}
	}

	term := sess.Terminal()
	_, size, err := term.Transcript(math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var raw string
	if req.WaitPattern != "" || req.SettleMs > 0 {
		timeout := time.Duration(req.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = DefaultReadTimeout
		}
		out, pos, err := wait.ForOutput(ctx, func() (string, int64, error) {
			data, cur, err := term.Transcript(size)
			return string(data), cur, err
		}, wait.Config{
			Pattern:       req.WaitPattern,
			SettleMs:      req.SettleMs,
			Timeout:       timeout,
			StartPosition: size,
		})
		resp.Waited = true
		resp.Position = pos
		raw = out
		if err != nil {
			resp.Message = err.Error()
		}
	} else {
		data, cur, err := term.Transcript(max(0, size-readWindow))
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		resp.Position = cur
		raw = string(data)
	}

	resp.Screen = tailLines(vterm.Render(raw, readCols), resp.Lines)
	resp.Success = resp.Message == ""
	return resp, nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, session.ErrExists):
		return ReasonExists
	case errors.Is(err, session.ErrInvalidName):
		return ReasonInvalidName
	}
	return ""
}

func describe(sess session.Session) SessionInfo {
	term := sess.Terminal()
	info := SessionInfo{
		Name:             sess.Name(),
		Kind:             string(sess.Kind()),
		ShellIntegration: sess.Kind() == session.KindStructured,
		PID:              term.PID(),
		Shell:            term.Shell(),
		CreatedAt:        sess.CreatedAt(),
	}
	if run, ok := sess.LastRun(); ok {
		info.LastCommand = run.Command
		at := run.At
		info.LastExecution = &at
	}
	return info
}

func tailLines(output string, n int) string {
	output = strings.TrimRight(output, "\n")
	if output == "" || n <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if n >= len(lines) {
		return output
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
