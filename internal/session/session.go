// Package session keeps the name to terminal mapping for named sessions.
package session

import (
	"sync"
	"time"

	"github.com/schovi/termtools/internal/host"
)

type Kind string

const (
	KindBasic      Kind = "basic"
	KindStructured Kind = "structured"
)

// Run is the last command sent to a session and what came back from it.
type Run struct {
	Command  string
	Output   string
	ExitCode *int
	Captured bool
	At       time.Time
}

// Session is either a *BasicSession or a *StructuredSession. The variant is
// fixed when the terminal is spawned.
type Session interface {
	Name() string
	Terminal() host.Terminal
	CreatedAt() time.Time
	Kind() Kind
	LastRun() (Run, bool)
	Record(run Run)

	setName(name string)
}

type base struct {
	term    host.Terminal
	created time.Time

	mu   sync.Mutex
	name string
	last *Run
}

func (b *base) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

func (b *base) setName(name string) {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
}

func (b *base) Terminal() host.Terminal { return b.term }
func (b *base) CreatedAt() time.Time    { return b.created }

func (b *base) LastRun() (Run, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Run{}, false
	}
	return *b.last, true
}

func (b *base) Record(run Run) {
	if run.At.IsZero() {
		run.At = time.Now()
	}
	b.mu.Lock()
	b.last = &run
	b.mu.Unlock()
}

// BasicSession can only receive raw text.
type BasicSession struct {
	base
}

func (s *BasicSession) Kind() Kind { return KindBasic }

// StructuredSession runs commands through shell integration.
type StructuredSession struct {
	base
	integration host.ShellIntegration
}

func (s *StructuredSession) Kind() Kind { return KindStructured }

func (s *StructuredSession) Integration() host.ShellIntegration {
	return s.integration
}

func newSession(name string, term host.Terminal) Session {
	now := time.Now()
	if integration := term.Integration(); integration != nil {
		return &StructuredSession{
			base:        base{term: term, created: now, name: name},
			integration: integration,
		}
	}
	return &BasicSession{base: base{term: term, created: now, name: name}}
}
