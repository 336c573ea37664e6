// Package hub fans semantic file change events out to a dynamic set of
// subscribers. Publishing never blocks: each subscriber has its own bounded
// buffer, and one that falls behind is dropped without slowing the rest.
package hub

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kitbash-viewer/server/internal/event"
)

// DefaultBuffer is the per-subscriber event buffer used when the
// configured size is zero or negative.
const DefaultBuffer = 100

// ErrTooManySubscribers is returned by Subscribe when the hub was created
// with a connection limit and the limit is reached.
var ErrTooManySubscribers = errors.New("too many subscribers")

// Subscriber is a receive-only handle bound to the hub. It sees every
// event published after Subscribe and nothing published before.
type Subscriber struct {
	ch chan event.Event
}

// Events returns the subscriber's channel. It is closed when the
// subscriber is unsubscribed, falls behind, or the hub shuts down.
func (s *Subscriber) Events() <-chan event.Event {
	return s.ch
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]bool
	buffer      int
	maxSubs     int // 0 means unlimited
	closed      bool
	published   atomic.Uint64
}

// New creates a hub with the given per-subscriber buffer size and
// subscriber limit (0 = unlimited).
func New(buffer, maxSubs int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		buffer:      buffer,
		maxSubs:     maxSubs,
	}
}

func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("hub is closed")
	}
	if h.maxSubs > 0 && len(h.subscribers) >= h.maxSubs {
		return nil, ErrTooManySubscribers
	}

	s := &Subscriber{ch: make(chan event.Event, h.buffer)}
	h.subscribers[s] = true
	return s, nil
}

// Unsubscribe removes s and closes its channel. Safe to call more than
// once and after the hub has already dropped the subscriber.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.ch)
	}
	h.mu.Unlock()
}

// Publish delivers e to every current subscriber and returns immediately.
// A subscriber whose buffer is full is dropped: its channel is closed so
// the owning session tears down, and the observer can reconnect.
func (h *Hub) Publish(e event.Event) {
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		select {
		case s.ch <- e:
		default:
			log.Printf("subscriber too slow, dropping")
			delete(h.subscribers, s)
			close(s.ch)
		}
	}
}

// Close drops all subscribers. Further Subscribe calls fail; Publish
// becomes a no-op beyond the counter.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subscribers {
		delete(h.subscribers, s)
		close(s.ch)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Published returns the total number of events published since creation,
// including ones delivered to no subscribers.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}
