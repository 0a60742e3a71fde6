// Package host is the terminal host used by the session registry: it spawns
// shells attached to pseudo-terminals, injects text into them and, for shells
// it can instrument, runs commands as structured executions whose output and
// exit status are observable.
package host

import "errors"

var (
	ErrNotRunning = errors.New("terminal is not running")
	ErrClosed     = errors.New("host is closed")
)

type SpawnOptions struct {
	Name       string
	ShellPath  string
	WorkingDir string
	Env        []string
}

// Host spawns and tracks terminals. End events of every structured execution
// are delivered to all current subscribers.
type Host interface {
	Spawn(opts SpawnOptions) (Terminal, error)
	// Terminals returns the terminals that are still alive.
	Terminals() []Terminal
	SubscribeEnd() *Subscription
	Close() error
}

type Terminal interface {
	ID() string
	Label() string
	PID() int
	Shell() string
	SendText(text string, addNewline bool) error
	// Show brings the terminal to the foreground.
	Show()
	Dispose() error
	Exited() bool
	// Integration returns nil when the shell cannot run structured executions.
	Integration() ShellIntegration
	// Transcript returns everything the terminal printed from offset on,
	// along with the current transcript size.
	Transcript(offset int64) ([]byte, int64, error)
}

type ShellIntegration interface {
	ExecuteCommand(commandLine string) (*Execution, error)
	// Interrupt sends Ctrl+C and reports the command line that was running.
	Interrupt() (commandLine string, found bool, err error)
}
