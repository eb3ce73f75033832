package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/binwatch/internal/event"
	testutil "github.com/xtxerr/binwatch/internal/testing"
)

func msg(id string) event.Message {
	return event.Message{Type: event.MessageRemoved, ID: id}
}

func TestHub_Fanout(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("websocket")
	b := h.Subscribe("tap")

	h.Broadcast(msg("x"))

	for _, s := range []*Subscriber{a, b} {
		got, err := testutil.Receive(s.C(), time.Second)
		if err != nil {
			t.Fatalf("%s: %v", s.Kind, err)
		}
		if got.ID != "x" {
			t.Errorf("%s: expected id=x, got %q", s.Kind, got.ID)
		}
	}

	stats := h.Stats()
	if stats.Subscribers != 2 || stats.Published != 1 || stats.Delivered != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe("websocket")

	var mu sync.Mutex
	drops := map[string]int{}
	h.SetOnDrop(func(kind string) {
		mu.Lock()
		drops[kind]++
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Broadcast(msg("m"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}

	if slow.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", slow.Dropped())
	}
	if h.Stats().Dropped != 3 {
		t.Errorf("expected hub dropped=3, got %d", h.Stats().Dropped)
	}
	if drops["websocket"] != 3 {
		t.Errorf("expected 3 drop callbacks, got %d", drops["websocket"])
	}
}

func TestSubscriber_Close(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("tap")

	s.Close()
	s.Close()

	if h.Count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Count())
	}
	if _, ok := <-s.C(); ok {
		t.Error("expected closed channel")
	}

	h.Broadcast(msg("after"))
}

func TestHub_Close(t *testing.T) {
	h := NewHub(1)
	h.Subscribe("a")
	h.Subscribe("b")

	h.Close()

	if h.Count() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", h.Count())
	}
}

func TestHub_IsBroadcaster(t *testing.T) {
	h := NewHub(8)
	s := h.Subscribe("websocket")

	store := event.NewStore(10, h)
	stored := store.Record(event.Entry{BinID: "BIN-001"})

	got, err := testutil.Receive(s.C(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != event.MessageEvent || got.Entry == nil || got.Entry.ID != stored.ID {
		t.Errorf("unexpected message %+v", got)
	}
}
