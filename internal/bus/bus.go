// Package bus fans dispatch events out to connected dashboard subscribers.
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by the triage pipeline.
const (
	TopicNewCall     = "new_call"
	TopicCallUpdate  = "call_update"
	TopicStatsUpdate = "stats_update"
)

const subscriberBuffer = 64

// Event is one broadcast message. Payload must be JSON-marshalable; it is
// shared across subscribers, so publishers hand over snapshots, never live
// pointers.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans events out to subscribers. Sends never block: a subscriber whose
// buffer is full loses the event, which is counted and reported via the
// Dropped hook. Dashboards are advisory; dispatch correctness never depends
// on delivery.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	closed  bool
	dropped atomic.Int64

	// OnPublish and OnDropped are optional metric hooks, set before use.
	OnPublish func(topic string)
	OnDropped func(topic string)
}

// New creates a Hub ready for use.
func New() *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
	}
}

// Publish delivers the event to every current subscriber without blocking.
func (h *Hub) Publish(topic string, payload any) {
	ev := Event{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.OnPublish != nil {
		h.OnPublish(topic)
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			if h.OnDropped != nil {
				h.OnDropped(topic)
			}
		}
	}
}

// Subscribe returns a channel of future events and an unsubscribe function.
// The channel is closed on unsubscribe or hub shutdown.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports the total number of events lost to full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close shuts the hub down and closes all subscriber channels. Subsequent
// Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
