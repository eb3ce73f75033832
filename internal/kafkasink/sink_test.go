package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/event"
	testutil "github.com/xtxerr/binwatch/internal/testing"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := New(Config{}, broadcast.NewHub(4), nil); err == nil {
		t.Error("expected error without brokers")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		msg  event.Message
		want string
	}{
		{"bin", event.Message{Type: event.MessageEvent, Entry: &event.Entry{ID: "e1", BinID: "BIN-001"}}, "BIN-001"},
		{"no bin", event.Message{Type: event.MessageEvent, Entry: &event.Entry{ID: "e1"}}, "e1"},
		{"removed", event.Message{Type: event.MessageRemoved, ID: "e2"}, "e2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := key(tt.msg); got != tt.want {
				t.Errorf("expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRunPublishesStoredEvents(t *testing.T) {
	hub := broadcast.NewHub(16)
	w := &memWriter{}
	sink := newSink(Config{Topic: "t"}, hub, w, nil)
	store := event.NewStore(10, hub)

	gt := testutil.NewGoroutineTest(t)
	gt.GoWithContext(sink.Run)

	if err := testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		return hub.Count() == 1
	}); err != nil {
		t.Fatal(err)
	}

	stored := store.Record(event.Entry{BinID: "BIN-001"})
	store.RemoveByID(stored.ID)

	if err := testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		return w.count() == 2
	}); err != nil {
		t.Fatalf("expected 2 messages: %v", err)
	}

	w.mu.Lock()
	first := w.msgs[0]
	second := w.msgs[1]
	w.mu.Unlock()

	if string(first.Key) != "BIN-001" {
		t.Errorf("expected key BIN-001, got %s", first.Key)
	}
	var msg event.Message
	if err := json.Unmarshal(first.Value, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != event.MessageEvent || msg.Entry.ID != stored.ID {
		t.Errorf("unexpected message %+v", msg)
	}
	if string(second.Key) != stored.ID {
		t.Errorf("expected removal keyed by id, got %s", second.Key)
	}

	gt.Cancel()
	gt.Wait()
	if !w.closed {
		t.Error("expected writer to be closed")
	}
	if got := sink.Stats().Published; got != 2 {
		t.Errorf("expected published=2, got %d", got)
	}
}

func TestWriteFailureCounted(t *testing.T) {
	w := &memWriter{err: fmt.Errorf("leader not available")}
	sink := newSink(Config{}, broadcast.NewHub(4), w, nil)

	sink.write(context.Background(), encode(event.Message{Type: event.MessageRemoved, ID: "x"}))

	if got := sink.Stats().Failed; got != 1 {
		t.Errorf("expected failed=1, got %d", got)
	}
}
