package host

import "sync"

// EndEvent reports that a structured execution finished. ExitCode is nil when
// the shell exited before reporting a status.
type EndEvent struct {
	ExecutionID string `json:"execution_id"`
	TerminalID  string `json:"terminal_id"`
	CommandLine string `json:"command_line"`
	ExitCode    *int   `json:"exit_code,omitempty"`
}

const subscriptionBuffer = 64

type EventBus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	bus       *EventBus
	ch        chan EndEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (b *EventBus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:  b,
		ch:   make(chan EndEvent, subscriptionBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers ev to every subscriber. A closed subscription never
// blocks the publisher.
func (b *EventBus) Publish(ev EndEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

func (s *Subscription) Events() <-chan EndEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
}
