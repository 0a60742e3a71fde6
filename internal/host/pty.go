package host

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ReadBufferSize   = 4096
	readPollInterval = 100 * time.Millisecond
	KillGracePeriod  = 100 * time.Millisecond
	DefaultCols      = 200
	DefaultRows      = 50

	// InterruptExitCode is reported for an execution ended by Ctrl+C.
	InterruptExitCode = 130
)

// Shells that understand the printf based marker wrapper.
var posixShells = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"ksh": true, "mksh": true, "ash": true, "busybox": true,
}

// PTYHost runs each terminal as a shell process on its own pseudo-terminal.
type PTYHost struct {
	mu           sync.Mutex
	terminals    map[string]*ptyTerminal
	foreground   string
	closed       bool
	storage      TranscriptStorage
	bus          *EventBus
	integration  bool
	defaultShell string
	cols, rows   uint16
	log          *zap.Logger
}

type Option func(*PTYHost)

func WithStorage(storage TranscriptStorage) Option {
	return func(h *PTYHost) {
		h.storage = storage
	}
}

// WithShellIntegration toggles structured execution for POSIX shells.
func WithShellIntegration(enabled bool) Option {
	return func(h *PTYHost) {
		h.integration = enabled
	}
}

func WithDefaultShell(shell string) Option {
	return func(h *PTYHost) {
		h.defaultShell = shell
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(h *PTYHost) {
		h.log = log
	}
}

func NewPTYHost(opts ...Option) *PTYHost {
	h := &PTYHost{
		terminals:   make(map[string]*ptyTerminal),
		storage:     NewMemoryStorage(DefaultMaxTranscriptSize),
		bus:         NewEventBus(),
		integration: true,
		cols:        DefaultCols,
		rows:        DefaultRows,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PTYHost) resolveShell(requested string) string {
	for _, candidate := range []string{requested, h.defaultShell, os.Getenv("SHELL")} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "/bin/sh"
}

func supportsIntegration(shell string) bool {
	fields := strings.Fields(shell)
	if len(fields) == 0 {
		return false
	}
	base := strings.TrimPrefix(filepath.Base(fields[0]), "-")
	return posixShells[base]
}

func (h *PTYHost) Spawn(opts SpawnOptions) (Terminal, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	shell := h.resolveShell(opts.ShellPath)
	fields := strings.Fields(shell)
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(append(os.Environ(), opts.Env...), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: h.cols, Rows: h.rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	t := &ptyTerminal{
		host:       h,
		id:         uuid.NewString(),
		label:      opts.Name,
		shell:      shell,
		cmd:        cmd,
		ptmx:       ptmx,
		done:       make(chan struct{}),
		exitedCh:   make(chan struct{}),
		structured: h.integration && supportsIntegration(shell),
		inflight:   make(map[string]*Execution),
		created:    time.Now(),
	}
	t.responder = newQueryResponder(ptmx)

	if err := h.storage.Create(t.id); err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		return nil, fmt.Errorf("create transcript: %w", err)
	}

	h.mu.Lock()
	h.terminals[t.id] = t
	h.mu.Unlock()

	h.log.Info("terminal spawned",
		zap.String("terminal", t.id),
		zap.String("label", t.label),
		zap.String("shell", shell),
		zap.Int("pid", cmd.Process.Pid),
		zap.Bool("structured", t.structured))

	go t.readLoop()
	return t, nil
}

func (h *PTYHost) Terminals() []Terminal {
	h.mu.Lock()
	defer h.mu.Unlock()

	live := make([]*ptyTerminal, 0, len(h.terminals))
	for _, t := range h.terminals {
		if !t.Exited() {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].created.Before(live[j].created) })

	out := make([]Terminal, len(live))
	for i, t := range live {
		out[i] = t
	}
	return out
}

func (h *PTYHost) SubscribeEnd() *Subscription {
	return h.bus.Subscribe()
}

// Foreground returns the ID of the terminal shown last.
func (h *PTYHost) Foreground() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.foreground
}

func (h *PTYHost) Close() error {
	h.mu.Lock()
	h.closed = true
	terminals := make([]*ptyTerminal, 0, len(h.terminals))
	for _, t := range h.terminals {
		terminals = append(terminals, t)
	}
	h.mu.Unlock()

	for _, t := range terminals {
		t.Dispose()
	}
	return nil
}

func (h *PTYHost) remove(t *ptyTerminal) {
	h.mu.Lock()
	delete(h.terminals, t.id)
	if h.foreground == t.id {
		h.foreground = ""
	}
	h.mu.Unlock()
	h.storage.Delete(t.id)
}

type ptyTerminal struct {
	host       *PTYHost
	id         string
	label      string
	shell      string
	cmd        *exec.Cmd
	ptmx       *os.File
	created    time.Time
	structured bool

	done      chan struct{}
	closeOnce sync.Once
	exited    atomic.Bool
	exitedCh  chan struct{}
	writeMu   sync.Mutex

	responder *queryResponder

	mu       sync.Mutex
	scanner  markerScanner
	inflight map[string]*Execution
	active   *Execution
}

func (t *ptyTerminal) ID() string    { return t.id }
func (t *ptyTerminal) Label() string { return t.label }
func (t *ptyTerminal) Shell() string { return t.shell }
func (t *ptyTerminal) Exited() bool  { return t.exited.Load() }

func (t *ptyTerminal) PID() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

func (t *ptyTerminal) SendText(text string, addNewline bool) error {
	if t.Exited() {
		return ErrNotRunning
	}
	if addNewline {
		text += "\n"
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.ptmx.WriteString(text); err != nil {
		return fmt.Errorf("write to terminal: %w", err)
	}
	return nil
}

func (t *ptyTerminal) Show() {
	t.host.mu.Lock()
	t.host.foreground = t.id
	t.host.mu.Unlock()
	t.host.log.Debug("terminal shown", zap.String("terminal", t.id), zap.String("label", t.label))
}

// Dispose hangs up the shell and escalates to SIGKILL after a grace period.
func (t *ptyTerminal) Dispose() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.ptmx.Close()
		if proc := t.cmd.Process; proc != nil {
			proc.Signal(syscall.SIGHUP)
			go func() {
				select {
				case <-t.exitedCh:
				case <-time.After(KillGracePeriod):
					proc.Signal(syscall.SIGKILL)
				}
			}()
		}
		t.host.log.Info("terminal disposed", zap.String("terminal", t.id), zap.String("label", t.label))
	})
	return nil
}

func (t *ptyTerminal) Integration() ShellIntegration {
	if !t.structured {
		return nil
	}
	return t
}

func (t *ptyTerminal) Transcript(offset int64) ([]byte, int64, error) {
	size, err := t.host.storage.Size(t.id)
	if err != nil {
		return nil, 0, err
	}
	data, err := t.host.storage.ReadFrom(t.id, offset)
	if err != nil {
		return nil, 0, err
	}
	return data, size, nil
}

func (t *ptyTerminal) ExecuteCommand(commandLine string) (*Execution, error) {
	if t.Exited() {
		return nil, ErrNotRunning
	}

	execution := NewExecution(t.id, commandLine)
	t.mu.Lock()
	t.inflight[execution.ID] = execution
	t.mu.Unlock()

	if err := t.SendText(wrapCommand(execution.ID, commandLine), true); err != nil {
		t.mu.Lock()
		delete(t.inflight, execution.ID)
		t.mu.Unlock()
		return nil, fmt.Errorf("dispatch command: %w", err)
	}
	return execution, nil
}

func (t *ptyTerminal) Interrupt() (string, bool, error) {
	t.mu.Lock()
	execution := t.active
	if execution != nil {
		delete(t.inflight, execution.ID)
		t.active = nil
	}
	t.mu.Unlock()

	if err := t.SendText("\x03", false); err != nil {
		return "", false, err
	}
	if execution == nil {
		return "", false, nil
	}

	code := InterruptExitCode
	if ev, ok := execution.Finish(&code); ok {
		t.host.bus.Publish(ev)
	}
	return execution.CommandLine, true, nil
}

func (t *ptyTerminal) readLoop() {
	buf := make([]byte, ReadBufferSize)
loop:
	for {
		select {
		case <-t.done:
			break loop
		default:
		}

		t.ptmx.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			t.consume(buf[:n])
		}
		if err != nil && !isTimeout(err) {
			break
		}
	}

	t.cmd.Wait()
	t.ptmx.Close()
	t.exited.Store(true)
	close(t.exitedCh)
	t.finish()
}

func (t *ptyTerminal) consume(chunk []byte) {
	chunk = t.responder.Process(chunk)
	var ended []EndEvent

	t.mu.Lock()
	for _, seg := range t.scanner.Scan(chunk) {
		switch seg.kind {
		case segmentData:
			t.host.storage.Append(t.id, seg.data)
			if t.active != nil {
				t.active.Write(seg.data)
			}
		case segmentStart:
			if execution, ok := t.inflight[seg.id]; ok {
				t.active = execution
				execution.MarkStarted()
			}
		case segmentEnd:
			execution, ok := t.inflight[seg.id]
			if !ok {
				continue
			}
			delete(t.inflight, seg.id)
			if t.active == execution {
				t.active = nil
			}
			if ev, first := execution.Finish(seg.exitCode); first {
				ended = append(ended, ev)
			}
		}
	}
	t.mu.Unlock()

	for _, ev := range ended {
		t.host.bus.Publish(ev)
	}
}

// finish ends whatever was still running when the shell went away.
func (t *ptyTerminal) finish() {
	var ended []EndEvent

	t.mu.Lock()
	if rest := t.scanner.Flush(); len(rest) > 0 {
		t.host.storage.Append(t.id, rest)
		if t.active != nil {
			t.active.Write(rest)
		}
	}
	for id, execution := range t.inflight {
		if ev, first := execution.Finish(nil); first {
			ended = append(ended, ev)
		}
		delete(t.inflight, id)
	}
	t.active = nil
	t.mu.Unlock()

	for _, ev := range ended {
		t.host.bus.Publish(ev)
	}
	t.host.remove(t)
	t.host.log.Info("terminal exited", zap.String("terminal", t.id), zap.String("label", t.label))
}

func isTimeout(err error) bool {
	if netErr, ok := err.(interface{ Timeout() bool }); ok {
		return netErr.Timeout()
	}
	return false
}
