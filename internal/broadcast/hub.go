// Package broadcast fans stored-event messages out to live subscribers
// (websocket clients, tap sessions).
//
// Broadcast never blocks: it is called while the event store holds its lock.
// A subscriber whose buffer is full loses the message and the drop is
// counted. Subscribers are expected to drain their channel promptly.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/logging"
)

var log = logging.Component("broadcast")

// =============================================================================
// Subscriber
// =============================================================================

// Subscriber receives broadcast messages on C until it is closed.
//
// Subscriber is safe for concurrent use.
type Subscriber struct {
	// Immutable fields (no lock needed)
	ID   string
	Kind string

	// sendMu orders sends against close of sendCh.
	sendMu sync.RWMutex
	sendCh chan event.Message

	dropped   atomic.Int64
	delivered atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	hub       *Hub
}

// C returns the receive channel. It is closed when the subscriber closes.
func (s *Subscriber) C() <-chan event.Message {
	return s.sendCh
}

// send delivers msg without blocking. It returns false when the message was
// dropped.
func (s *Subscriber) send(msg event.Message) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed.Load() {
		return false
	}

	select {
	case s.sendCh <- msg:
		s.delivered.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of messages lost to a full buffer.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C. It is idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		if s.hub != nil {
			s.hub.remove(s.ID)
		}

		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.sendCh)
		s.sendMu.Unlock()

		log.Debug("subscriber closed",
			"subscriber_id", s.ID,
			"kind", s.Kind,
			"delivered", s.delivered.Load(),
			"dropped", s.dropped.Load())
	})
}

// =============================================================================
// Hub
// =============================================================================

// Stats holds hub statistics.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// Hub is an event.Broadcaster that copies every message to all subscribers.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64

	// Called after each dropped message, e.g. for metrics.
	onDrop func(kind string)
}

// NewHub creates a hub. bufferSize <= 0 selects the default.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = config.DefaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// SetOnDrop sets the drop callback.
func (h *Hub) SetOnDrop(fn func(kind string)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Subscribe registers a new subscriber. kind labels it in logs and metrics
// ("websocket", "tap").
func (h *Hub) Subscribe(kind string) *Subscriber {
	s := &Subscriber{
		ID:     uuid.NewString(),
		Kind:   kind,
		sendCh: make(chan event.Message, h.bufferSize),
		hub:    h,
	}

	h.mu.Lock()
	h.subscribers[s.ID] = s
	h.mu.Unlock()

	log.Debug("subscriber added", "subscriber_id", s.ID, "kind", kind)
	return s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// Broadcast implements event.Broadcaster.
func (h *Hub) Broadcast(msg event.Message) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subscribers {
		if s.send(msg) {
			h.delivered.Add(1)
			continue
		}
		h.dropped.Add(1)
		if h.onDrop != nil {
			h.onDrop(s.Kind)
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.Close()
	}
}

// Stats returns hub statistics.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.Count(),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}
