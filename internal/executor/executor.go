// Package executor sends commands to sessions and, when the session's shell
// is instrumented, waits for the command to finish and collects its output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/schovi/termtools/internal/host"
	"github.com/schovi/termtools/internal/metrics"
	"github.com/schovi/termtools/internal/session"
	"github.com/schovi/termtools/internal/vterm"
)

const DefaultTimeout = 60 * time.Second

var ErrTimeout = errors.New("timed out waiting for command to finish")

// Result is the outcome of sending one command. ExitCode is nil when the
// shell never reported one.
type Result struct {
	Succeeded     bool   `json:"succeeded"`
	Output        string `json:"output"`
	Error         string `json:"error,omitempty"`
	ExitCode      *int   `json:"exit_code,omitempty"`
	ElapsedMillis int64  `json:"elapsed_ms"`
	Captured      bool   `json:"captured"`
	TimedOut      bool   `json:"timed_out,omitempty"`
}

type CancelResult struct {
	Succeeded bool   `json:"succeeded"`
	Command   string `json:"command,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Events is the part of the host the executor needs to observe completions.
type Events interface {
	SubscribeEnd() *host.Subscription
}

type Executor struct {
	events  Events
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Executor)

func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func New(events Events, opts ...Option) *Executor {
	e := &Executor{
		events:  events,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Send types command into the session's terminal followed by a newline and
// returns immediately.
func (e *Executor) Send(ctx context.Context, s session.Session, command string) Result {
	return e.sendText(s, command, true)
}

// SendRaw writes text without a trailing newline.
func (e *Executor) SendRaw(ctx context.Context, s session.Session, text string) Result {
	return e.sendText(s, text, false)
}

func (e *Executor) sendText(s session.Session, text string, newline bool) Result {
	term := s.Terminal()
	term.Show()
	if err := term.SendText(text, newline); err != nil {
		e.metrics.RecordExecution(metrics.ModeSend, metrics.OutcomeFailed, 0)
		return Result{Error: err.Error()}
	}

	e.metrics.RecordExecution(metrics.ModeSend, metrics.OutcomeSucceeded, 0)
	s.Record(session.Run{Command: text})
	e.log.Debug("command sent", zap.String("session", s.Name()), zap.String("command", text))
	return Result{Succeeded: true}
}

// Execute runs command and waits for it to finish. A zero timeout uses the
// executor default.
func (e *Executor) Execute(ctx context.Context, s session.Session, command string, timeout time.Duration) Result {
	switch s := s.(type) {
	case *session.StructuredSession:
		return e.executeStructured(ctx, s, command, timeout)
	default:
		return e.executeBasic(s, command)
	}
}

func (e *Executor) executeBasic(s session.Session, command string) Result {
	term := s.Terminal()
	term.Show()
	if err := term.SendText(command, true); err != nil {
		e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeFailed, 0)
		return Result{Error: err.Error()}
	}

	e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeFallback, 0)
	s.Record(session.Run{Command: command})
	e.log.Info("output capture unavailable, command sent without capture",
		zap.String("session", s.Name()), zap.String("command", command))
	return Result{
		Succeeded: true,
		Output:    "Command sent, but output could not be captured: shell integration is not available in this terminal.",
	}
}

func (e *Executor) executeStructured(ctx context.Context, s *session.StructuredSession, command string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = e.timeout
	}
	term := s.Terminal()
	term.Show()

	// Subscribe before dispatch so a fast command cannot finish unseen.
	sub := e.events.SubscribeEnd()
	defer sub.Close()

	start := time.Now()
	execution, err := s.Integration().ExecuteCommand(command)
	if err != nil {
		return e.dispatchFallback(s, command, err, start)
	}
	e.log.Debug("command dispatched",
		zap.String("session", s.Name()),
		zap.String("execution", execution.ID),
		zap.String("command", command))

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		raw []byte
		end host.EndEvent
	)
	g, gctx := errgroup.WithContext(waitCtx)
	g.Go(func() error {
		select {
		case <-execution.Started():
		case <-gctx.Done():
			return gctx.Err()
		}
		var err error
		raw, err = execution.Stream().ReadAll(gctx)
		return err
	})
	g.Go(func() error {
		for {
			select {
			case ev := <-sub.Events():
				if ev.TerminalID == execution.TerminalID && ev.ExecutionID == execution.ID {
					end = ev
					return nil
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	waitErr := g.Wait()

	elapsed := time.Since(start)
	output := cleanOutput(raw)
	if waitErr != nil {
		return e.waitFailed(ctx, s, command, output, waitErr, elapsed, timeout)
	}

	exitCode := 1
	if end.ExitCode != nil {
		exitCode = *end.ExitCode
	}
	result := Result{
		Succeeded:     exitCode == 0,
		Output:        output,
		ExitCode:      &exitCode,
		ElapsedMillis: elapsed.Milliseconds(),
		Captured:      true,
	}
	switch {
	case end.ExitCode == nil:
		result.Error = "terminal closed before the command reported an exit code"
	case !result.Succeeded:
		result.Error = fmt.Sprintf("command exited with code %d", exitCode)
	}

	outcome := metrics.OutcomeSucceeded
	if !result.Succeeded {
		outcome = metrics.OutcomeFailed
	}
	e.metrics.RecordExecution(metrics.ModeCapture, outcome, elapsed)
	s.Record(session.Run{Command: command, Output: output, ExitCode: &exitCode, Captured: true})
	e.log.Info("command finished",
		zap.String("session", s.Name()),
		zap.String("command", command),
		zap.Int("exit_code", exitCode),
		zap.Duration("elapsed", elapsed))
	return result
}

// dispatchFallback types the command as plain text when structured dispatch
// fails, and reports the dispatch failure.
func (e *Executor) dispatchFallback(s session.Session, command string, dispatchErr error, start time.Time) Result {
	e.log.Warn("structured dispatch failed, sending raw command",
		zap.String("session", s.Name()), zap.String("command", command), zap.Error(dispatchErr))
	e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeFailed, time.Since(start))

	msg := fmt.Sprintf("failed to execute command with output capture: %v", dispatchErr)
	if err := s.Terminal().SendText(command, true); err != nil {
		msg = fmt.Sprintf("%s; raw send failed: %v", msg, err)
	} else {
		s.Record(session.Run{Command: command})
	}
	return Result{
		Error:         msg,
		ElapsedMillis: time.Since(start).Milliseconds(),
	}
}

func (e *Executor) waitFailed(parent context.Context, s session.Session, command, output string, waitErr error, elapsed, timeout time.Duration) Result {
	result := Result{
		Output:        output,
		ElapsedMillis: elapsed.Milliseconds(),
		Captured:      output != "",
	}

	switch {
	case parent.Err() != nil:
		result.Error = fmt.Sprintf("command wait cancelled: %v", parent.Err())
		e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeFailed, elapsed)
	case errors.Is(waitErr, context.DeadlineExceeded):
		result.TimedOut = true
		result.Error = fmt.Sprintf("%v after %s", ErrTimeout, timeout)
		e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeTimeout, elapsed)
		e.log.Warn("command timed out",
			zap.String("session", s.Name()),
			zap.String("command", command),
			zap.Duration("timeout", timeout))
	default:
		result.Error = waitErr.Error()
		e.metrics.RecordExecution(metrics.ModeCapture, metrics.OutcomeFailed, elapsed)
	}

	s.Record(session.Run{Command: command, Output: output, Captured: result.Captured})
	return result
}

// Cancel interrupts whatever is running in the session.
func (e *Executor) Cancel(ctx context.Context, s session.Session) CancelResult {
	e.metrics.RecordCancel()
	s.Terminal().Show()

	if structured, ok := s.(*session.StructuredSession); ok {
		command, found, err := structured.Integration().Interrupt()
		if err != nil {
			return CancelResult{Error: err.Error()}
		}
		if found {
			e.log.Info("command interrupted", zap.String("session", s.Name()), zap.String("command", command))
			return CancelResult{Succeeded: true, Command: command}
		}
		return CancelResult{Succeeded: true}
	}

	if err := s.Terminal().SendText("\x03", false); err != nil {
		return CancelResult{Error: err.Error()}
	}
	return CancelResult{Succeeded: true}
}

// cleanOutput strips terminal control sequences and surrounding whitespace.
func cleanOutput(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	return strings.TrimSpace(vterm.Clean(string(raw)))
}
