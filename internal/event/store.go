package event

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/normalize"
	"github.com/xtxerr/binwatch/internal/storage/buffer"
)

// Store is the bounded event history plus the last result.
//
// Record and RemoveByID hold one lock across the history update and the
// broadcast, so subscribers observe changes in history order.
type Store struct {
	mu          sync.Mutex
	history     *buffer.RingBuffer[*Entry]
	last        *Entry
	broadcaster Broadcaster

	now   func() time.Time
	newID func() string
}

// NewStore creates a store holding at most capacity entries. A nil
// broadcaster discards messages.
func NewStore(capacity int, b Broadcaster) *Store {
	if capacity <= 0 {
		capacity = config.DefaultHistoryCapacity
	}
	if b == nil {
		b = discard{}
	}
	return &Store{
		history:     buffer.New[*Entry](capacity),
		broadcaster: b,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Record stores entry as the last result, appends it to the history
// (evicting exactly one oldest entry when full) and broadcasts it. A missing
// id or timestamp is filled in. The stored entry is returned.
func (s *Store) Record(entry Entry) Entry {
	e := &entry
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.Timestamp == "" {
		e.Timestamp = normalize.FormatTime(s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = e
	s.history.PushOverwrite(e)

	out := *e
	s.broadcaster.Broadcast(Message{Type: MessageEvent, Entry: &out})
	return out
}

// RemoveByID removes the oldest entry with the given id. When the removed
// entry was the last result, the newest remaining entry (or nothing) takes
// its place. It reports whether an entry was removed.
func (s *Store) RemoveByID(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, ok := s.history.RemoveFirst(func(e *Entry) bool { return e.ID == id })
	if !ok {
		return Entry{}, false
	}

	if removed == s.last {
		s.last = nil
		if newest, ok := s.history.PeekNewest(); ok {
			s.last = newest
		}
	}

	s.broadcaster.Broadcast(Message{Type: MessageRemoved, ID: id})
	return *removed, true
}

// Last returns the last result.
func (s *Store) Last() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return Entry{}, false
	}
	return *s.last, true
}

// History returns the stored entries from oldest to newest.
func (s *Store) History() []Entry {
	snap := s.history.Snapshot()
	out := make([]Entry, len(snap))
	for i, e := range snap {
		out[i] = *e
	}
	return out
}

// Classifications returns up to limit classification entries, newest first.
// A non-positive limit means the default; larger limits are capped.
func (s *Store) Classifications(limit int) []Entry {
	limit = ClampLimit(limit)

	found := s.history.Newest(limit, func(e *Entry) bool { return e.IsClassification() })
	out := make([]Entry, len(found))
	for i, e := range found {
		out[i] = *e
	}
	return out
}

// ClampLimit maps a requested classification limit into 1..max.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return config.DefaultClassificationLimit
	case limit > config.MaxClassificationLimit:
		return config.MaxClassificationLimit
	default:
		return limit
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return s.history.Len()
}

// Cap returns the history capacity.
func (s *Store) Cap() int {
	return s.history.Cap()
}

// Stats returns history buffer statistics.
func (s *Store) Stats() buffer.BufferStats {
	return s.history.Stats()
}
