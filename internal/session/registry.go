package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/host"
	"github.com/schovi/termtools/internal/metrics"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrExists      = errors.New("session already exists")
	ErrInvalidName = errors.New("invalid session name")
)

type CreateOptions struct {
	ShellPath  string
	WorkingDir string
	Env        []string
}

// Registry maps session names to live terminals. Every lookup revalidates
// the terminal against the host and forgets sessions whose terminal is gone.
type Registry struct {
	mu       sync.Mutex
	host     host.Host
	sessions map[string]Session
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Registry)

func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(h host.Host, opts ...Option) *Registry {
	r := &Registry{
		host:     h,
		sessions: make(map[string]Session),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the live session called name, spawning a terminal when
// there is none. created reports whether a terminal was spawned.
func (r *Registry) GetOrCreate(name string, opts CreateOptions) (Session, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.lookupLocked(name, r.liveIDs()); ok {
		return s, false, nil
	}
	s, err := r.spawnLocked(name, opts)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Create spawns a new session and fails with ErrExists if name is taken by
// a live session.
func (r *Registry) Create(name string, opts CreateOptions) (Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookupLocked(name, r.liveIDs()); ok {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}
	return r.spawnLocked(name, opts)
}

func (r *Registry) Get(name string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(name, r.liveIDs())
}

// List reconciles the registry with the host and returns the live sessions
// ordered by name.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.liveIDs()
	out := make([]Session, 0, len(r.sessions))
	for name := range r.sessions {
		if s, ok := r.lookupLocked(name, live); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Delete disposes the session's terminal. It returns false when no live
// session is registered under name.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	s, ok := r.lookupLocked(name, r.liveIDs())
	if ok {
		delete(r.sessions, name)
		r.metrics.SetSessions(len(r.sessions))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.Terminal().Dispose(); err != nil {
		r.log.Warn("dispose terminal", zap.String("session", name), zap.Error(err))
	}
	r.log.Info("session deleted", zap.String("session", name))
	return true
}

// Rename moves the session to newName while keeping its terminal.
func (r *Registry) Rename(oldName, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.liveIDs()
	s, ok := r.lookupLocked(oldName, live)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if _, taken := r.lookupLocked(newName, live); taken {
		return fmt.Errorf("%w: %q", ErrExists, newName)
	}

	delete(r.sessions, oldName)
	r.sessions[newName] = s
	s.setName(newName)
	r.log.Info("session renamed", zap.String("from", oldName), zap.String("to", newName))
	return nil
}

// Close disposes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.metrics.SetSessions(0)
	r.mu.Unlock()

	for name, s := range sessions {
		if err := s.Terminal().Dispose(); err != nil {
			r.log.Warn("dispose terminal", zap.String("session", name), zap.Error(err))
		}
	}
}

func (r *Registry) liveIDs() map[string]bool {
	live := make(map[string]bool)
	for _, t := range r.host.Terminals() {
		live[t.ID()] = true
	}
	return live
}

func (r *Registry) lookupLocked(name string, live map[string]bool) (Session, bool) {
	s, ok := r.sessions[name]
	if !ok {
		return nil, false
	}
	term := s.Terminal()
	if term.Exited() || !live[term.ID()] {
		delete(r.sessions, name)
		r.metrics.SessionReaped()
		r.metrics.SetSessions(len(r.sessions))
		r.log.Info("session reaped", zap.String("session", name), zap.String("terminal", term.ID()))
		return nil, false
	}
	return s, true
}

func (r *Registry) spawnLocked(name string, opts CreateOptions) (Session, error) {
	term, err := r.host.Spawn(host.SpawnOptions{
		Name:       name,
		ShellPath:  opts.ShellPath,
		WorkingDir: opts.WorkingDir,
		Env:        opts.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("spawn terminal %q: %w", name, err)
	}

	s := newSession(name, term)
	r.sessions[name] = s
	r.metrics.SessionCreated()
	r.metrics.SetSessions(len(r.sessions))
	r.log.Info("session created",
		zap.String("session", name),
		zap.String("terminal", term.ID()),
		zap.String("kind", string(s.Kind())))
	return s, nil
}
