package events

import (
	"sync"
	"time"

	"github.com/cuemby/doghair/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventCollectorBooted  EventType = "collector.booted"
	EventCollectorLost    EventType = "collector.lost"
	EventCollectorRebirth EventType = "collector.rebirth"
	EventCollectorRetired EventType = "collector.retired"
	EventCollectStarted   EventType = "collect.started"
	EventCollectStopped   EventType = "collect.stopped"
	EventPullStarted      EventType = "pull.started"
	EventPullFile         EventType = "pull.file"
	EventPullCompleted    EventType = "pull.completed"
)

// Event is one coordinator event. The fields mirror what the state
// core knows when it publishes: which collector the event concerns,
// which pull cycle it belongs to, and the file or failure detail.
// Fields that do not apply to an event type stay zero.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Node is the collector the event concerns, if any
	Node types.PeerID

	// Cycle is the pull cycle ID for pull.* events
	Cycle string

	// File is the sample file for pull.file events
	File string

	// Detail carries the loss reason or the repository path
	Detail string
}

// Broker fans coordinator events out to subscribers. Delivery is
// synchronous and non-blocking: Publish hands the event to every
// subscriber buffer in the caller's goroutine, and a subscriber that
// has stopped draining loses events rather than stalling the state
// core.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function that
// removes the subscription and closes the channel. A buffer of zero or
// less picks a small default.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish stamps the event and delivers it to every subscriber whose
// buffer has room.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			// Subscriber is not draining; drop rather than block
		}
	}
}

// Close drops all subscriptions and closes their channels. Publish and
// Subscribe after Close are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}

// SubscriberCount returns the number of active subscriptions
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
