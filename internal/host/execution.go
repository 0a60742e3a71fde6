package host

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Execution is one command dispatched through shell integration.
type Execution struct {
	ID           string
	TerminalID   string
	CommandLine  string
	DispatchedAt time.Time

	started    chan struct{}
	startOnce  sync.Once
	finishOnce sync.Once
	stream     *Stream
}

func NewExecution(terminalID, commandLine string) *Execution {
	return &Execution{
		ID:           uuid.NewString(),
		TerminalID:   terminalID,
		CommandLine:  commandLine,
		DispatchedAt: time.Now(),
		started:      make(chan struct{}),
		stream:       newStream(),
	}
}

// Started is closed once the shell begins running the command.
func (e *Execution) Started() <-chan struct{} {
	return e.started
}

func (e *Execution) Stream() *Stream {
	return e.stream
}

func (e *Execution) MarkStarted() {
	e.startOnce.Do(func() { close(e.started) })
}

func (e *Execution) Write(p []byte) {
	e.stream.push(p)
}

// Finish closes the output stream and returns the end event. The second
// return value is false when the execution had already finished.
func (e *Execution) Finish(exitCode *int) (EndEvent, bool) {
	finished := false
	e.finishOnce.Do(func() {
		e.MarkStarted()
		e.stream.close()
		finished = true
	})
	return EndEvent{
		ExecutionID: e.ID,
		TerminalID:  e.TerminalID,
		CommandLine: e.CommandLine,
		ExitCode:    exitCode,
	}, finished
}

// Stream is an unbounded queue of output chunks. Writers never block.
type Stream struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
	notify chan struct{}
}

func newStream() *Stream {
	return &Stream{notify: make(chan struct{})}
}

func (s *Stream) push(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks = append(s.chunks, append([]byte(nil), p...))
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.notify)
}

// Next returns the next chunk, blocking until one is available. It returns
// io.EOF after the stream is closed and drained.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.chunks) > 0 {
			chunk := s.chunks[0]
			s.chunks = s.chunks[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, io.EOF
		}
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

// ReadAll drains the stream until it is closed. On context expiry it returns
// what was read so far together with the context error.
func (s *Stream) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
}
