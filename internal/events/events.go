// Package events is the in-process change bus. Mutations publish an Event
// after they commit; subscribers such as the recomputer treat every event as
// "this project may need recomputing".
package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names what changed. Subscribers must accept kinds they do not know.
type Kind string

// Event kinds published by gantry itself.
const (
	TaskCreated       Kind = "task_created"
	TaskUpdated       Kind = "task_updated"
	TaskDeleted       Kind = "task_deleted"
	DependencyAdded   Kind = "dependency_added"
	DependencyRemoved Kind = "dependency_removed"
	MilestoneUpdated  Kind = "milestone_updated"
	RebaselineDecided Kind = "rebaseline_decided"
	PlanReloaded      Kind = "plan_reloaded"
)

// Event is one committed change.
type Event struct {
	Kind      Kind
	ProjectID string
	// TaskID is empty for project-wide changes.
	TaskID   string
	Revision int64
	At       time.Time
}

// Subscription receives events on C until it is cancelled or the bus closes.
type Subscription struct {
	ch    chan Event
	kinds []Kind
	once  sync.Once
}

// C returns the delivery channel. It is closed on Unsubscribe or Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans events out to subscribers. Publish never blocks: an event for a
// subscriber whose buffer is full is dropped and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBus creates a bus. A nil logger means slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given buffer size. With no kinds
// it receives every event.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{ch: make(chan Event, buffer), kinds: kinds}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call twice.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.close()
}

// Publish delivers ev to every interested subscriber. A zero At is set to
// the current time.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.wants(ev.Kind) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber full",
				"kind", ev.Kind, "project", ev.ProjectID, "task", ev.TaskID)
		}
	}
}

// Dropped reports how many deliveries were dropped so far.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.close()
	}
	b.subs = nil
}
