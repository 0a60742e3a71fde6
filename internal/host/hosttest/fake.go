// Package hosttest provides an in-memory host.Host for tests.
package hosttest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/schovi/termtools/internal/host"
)

// Reply describes how a fake structured execution behaves. A nil ExitCode
// simulates a shell that never reported a status. Hang keeps the execution
// running until it is interrupted or the terminal exits.
type Reply struct {
	Output   string
	ExitCode *int
	Hang     bool
}

// Responder decides the reply for a dispatched command line.
type Responder func(commandLine string) Reply

func Exit(code int) *int { return &code }

// Echo replies to "echo X" with X and exit code 0, and to anything else with
// exit code 0 and no output.
func Echo(commandLine string) Reply {
	const prefix = "echo "
	if len(commandLine) > len(prefix) && commandLine[:len(prefix)] == prefix {
		return Reply{Output: commandLine[len(prefix):] + "\r\n", ExitCode: Exit(0)}
	}
	return Reply{ExitCode: Exit(0)}
}

type Host struct {
	mu        sync.Mutex
	terminals []*Terminal
	bus       *host.EventBus

	// Structured decides whether spawned terminals get shell integration.
	Structured bool
	Responder  Responder
	SpawnErr   error
	// DispatchErr makes every ExecuteCommand fail.
	DispatchErr error
}

func NewHost(structured bool) *Host {
	return &Host{
		bus:        host.NewEventBus(),
		Structured: structured,
		Responder:  Echo,
	}
}

func (h *Host) Spawn(opts host.SpawnOptions) (host.Terminal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.SpawnErr != nil {
		return nil, h.SpawnErr
	}
	t := &Terminal{
		host:       h,
		id:         uuid.NewString(),
		label:      opts.Name,
		shell:      opts.ShellPath,
		workingDir: opts.WorkingDir,
		structured: h.Structured,
		running:    make(map[string]*host.Execution),
	}
	h.terminals = append(h.terminals, t)
	return t, nil
}

func (h *Host) Terminals() []host.Terminal {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []host.Terminal
	for _, t := range h.terminals {
		if !t.Exited() && !t.hidden {
			out = append(out, t)
		}
	}
	return out
}

func (h *Host) SubscribeEnd() *host.Subscription {
	return h.bus.Subscribe()
}

// Publish injects an arbitrary end event, e.g. one for another execution.
func (h *Host) Publish(ev host.EndEvent) {
	h.bus.Publish(ev)
}

func (h *Host) Close() error {
	h.mu.Lock()
	terminals := append([]*Terminal(nil), h.terminals...)
	h.mu.Unlock()
	for _, t := range terminals {
		t.Dispose()
	}
	return nil
}

// Spawned returns every terminal ever spawned, including exited ones.
func (h *Host) Spawned() []*Terminal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Terminal(nil), h.terminals...)
}

// Forget makes the host stop reporting t without marking it exited, as if
// the user closed it out of band.
func (h *Host) Forget(t *Terminal) {
	h.mu.Lock()
	t.hidden = true
	h.mu.Unlock()
}

type Terminal struct {
	host       *Host
	id         string
	label      string
	shell      string
	workingDir string
	structured bool
	hidden     bool

	mu         sync.Mutex
	sent       []string
	transcript []byte
	shown      int
	disposed   bool
	exited     bool
	running    map[string]*host.Execution
}

func (t *Terminal) ID() string    { return t.id }
func (t *Terminal) Label() string { return t.label }
func (t *Terminal) PID() int      { return 4242 }
func (t *Terminal) Shell() string { return t.shell }

// WorkingDir is the directory the terminal was spawned in.
func (t *Terminal) WorkingDir() string { return t.workingDir }

func (t *Terminal) SendText(text string, addNewline bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exited {
		return host.ErrNotRunning
	}
	if addNewline {
		text += "\n"
	}
	t.sent = append(t.sent, text)
	t.transcript = append(t.transcript, text...)
	return nil
}

func (t *Terminal) Show() {
	t.mu.Lock()
	t.shown++
	t.mu.Unlock()
}

func (t *Terminal) Dispose() error {
	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()
	t.Exit()
	return nil
}

func (t *Terminal) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

func (t *Terminal) Integration() host.ShellIntegration {
	if !t.structured {
		return nil
	}
	return t
}

func (t *Terminal) Transcript(offset int64) ([]byte, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := int64(len(t.transcript))
	if offset >= size {
		return []byte{}, size, nil
	}
	return append([]byte(nil), t.transcript[offset:]...), size, nil
}

// Print appends output to the transcript as if the shell printed it.
func (t *Terminal) Print(s string) {
	t.mu.Lock()
	t.transcript = append(t.transcript, s...)
	t.mu.Unlock()
}

func (t *Terminal) ExecuteCommand(commandLine string) (*host.Execution, error) {
	if t.host.DispatchErr != nil {
		return nil, t.host.DispatchErr
	}
	if t.Exited() {
		return nil, host.ErrNotRunning
	}

	execution := host.NewExecution(t.id, commandLine)
	reply := t.host.Responder(commandLine)

	t.mu.Lock()
	t.sent = append(t.sent, commandLine+"\n")
	t.running[execution.ID] = execution
	t.mu.Unlock()

	go func() {
		execution.MarkStarted()
		if reply.Output != "" {
			execution.Write([]byte(reply.Output))
			t.Print(reply.Output)
		}
		if reply.Hang {
			return
		}
		t.end(execution, reply.ExitCode)
	}()
	return execution, nil
}

func (t *Terminal) Interrupt() (string, bool, error) {
	if err := t.SendText("\x03", false); err != nil {
		return "", false, err
	}

	t.mu.Lock()
	var target *host.Execution
	for _, execution := range t.running {
		target = execution
		break
	}
	t.mu.Unlock()

	if target == nil {
		return "", false, nil
	}
	t.end(target, Exit(host.InterruptExitCode))
	return target.CommandLine, true, nil
}

func (t *Terminal) end(execution *host.Execution, exitCode *int) {
	t.mu.Lock()
	delete(t.running, execution.ID)
	t.mu.Unlock()
	if ev, ok := execution.Finish(exitCode); ok {
		t.host.bus.Publish(ev)
	}
}

// Exit simulates the shell process going away.
func (t *Terminal) Exit() {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return
	}
	t.exited = true
	running := make([]*host.Execution, 0, len(t.running))
	for _, execution := range t.running {
		running = append(running, execution)
	}
	t.running = map[string]*host.Execution{}
	t.mu.Unlock()

	for _, execution := range running {
		if ev, ok := execution.Finish(nil); ok {
			t.host.bus.Publish(ev)
		}
	}
}

func (t *Terminal) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

func (t *Terminal) ShownCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}

func (t *Terminal) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// ErrDispatch is a ready-made dispatch failure.
var ErrDispatch = errors.New("shell integration unavailable")

func (t *Terminal) String() string {
	return fmt.Sprintf("fake terminal %s (%s)", t.label, t.id)
}
