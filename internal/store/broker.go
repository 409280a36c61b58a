// Package store holds the three client-side state aggregates (session,
// rooms/messages/credits, notification feed). Each store owns its state behind
// a mutex and is the only place that state is mutated. After every mutation a
// store publishes an Event carrying a copy of its new state to a Broker, so
// observers (UI stream, metrics) follow changes one-way: stores never call back
// into the orchestration layer.
package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind names what changed.
type EventKind string

const (
	EventSession       EventKind = "session"
	EventRooms         EventKind = "rooms"
	EventMessages      EventKind = "messages"
	EventCredits       EventKind = "credits"
	EventSent          EventKind = "sent" // message appended and its cost deducted
	EventNotifications EventKind = "notifications"
)

// Event is a state change notification. Payload is a snapshot taken while the
// publishing store still held its lock, so events of one store arrive in
// mutation order and never describe a half-applied operation.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Broker fans events out to subscribers. Delivery never blocks a store: if a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted in Dropped.
//
// A nil *Broker is valid and discards everything.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	nextID  uint64
	seq     uint64
	dropped atomic.Uint64
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size and returns its
// channel plus a cancel func. Cancel closes the channel and is safe to call
// more than once.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps and delivers an event to every subscriber.
func (b *Broker) Publish(kind EventKind, payload any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event{Seq: b.seq, Kind: kind, At: time.Now().UTC(), Payload: payload}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was slow.
func (b *Broker) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Subscribers reports the current subscriber count.
func (b *Broker) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
