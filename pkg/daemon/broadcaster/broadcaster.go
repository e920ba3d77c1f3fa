// Package broadcaster fans optimization progress out to subscribers.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// Event is one progress notification of an optimization run.
type Event struct {
	RunID   string
	Reason  types.OptimizationReason
	Counter uint8
	Total   uint8
	Label   string

	// Done marks the terminal event, which carries the finished run.
	Done bool
	Run  *types.OptimizationRun
}

// Subscriber represents a client subscribed to progress events.
type Subscriber struct {
	ID      string
	Reasons []types.OptimizationReason
	Events  chan *Event
}

// Broadcaster manages subscribers and distributes progress events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription. With no reasons every run is
// delivered; otherwise only runs started for one of reasons.
// It returns nil once the broadcaster is closed.
func (b *Broadcaster) Subscribe(reasons ...types.OptimizationReason) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:      uuid.New().String(),
		Reasons: reasons,
		Events:  make(chan *Event, 100),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to all matching subscribers. A subscriber whose
// buffer is full misses the event.
func (b *Broadcaster) Notify(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !matches(sub, event) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func matches(sub *Subscriber, event *Event) bool {
	if len(sub.Reasons) == 0 {
		return true
	}
	for _, r := range sub.Reasons {
		if r == event.Reason {
			return true
		}
	}
	return false
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}
