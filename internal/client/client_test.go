package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/wire"
)

// serveFrames accepts one connection, writes msgs and closes it.
func serveFrames(t *testing.T, msgs ...event.Message) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		w := wire.NewWriter(conn)
		for _, m := range msgs {
			if err := w.Write(m); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestTailUntilServerCloses(t *testing.T) {
	addr := serveFrames(t,
		event.Message{Type: event.MessageEvent, Entry: &event.Entry{ID: "a", BinID: "BIN-001"}},
		event.Message{Type: event.MessageRemoved, ID: "a"},
	)

	c, err := Dial(context.Background(), &Config{Addr: addr, ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var got []event.Message
	if err := c.Tail(context.Background(), func(m event.Message) { got = append(got, m) }); err != nil {
		t.Fatalf("Tail: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Entry == nil || got[0].Entry.BinID != "BIN-001" {
		t.Errorf("unexpected first message %+v", got[0])
	}
	if got[1].Type != event.MessageRemoved || got[1].ID != "a" {
		t.Errorf("unexpected second message %+v", got[1])
	}
}

func TestTailStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			// Hold the connection open without writing.
			defer conn.Close()
			time.Sleep(5 * time.Second)
		}
	}()

	c, err := Dial(context.Background(), &Config{Addr: ln.Addr().String()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Tail(ctx, func(event.Message) {}); err != nil {
		t.Errorf("expected nil on cancel, got %v", err)
	}
	if _, err := c.Recv(); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed after cancel, got %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(context.Background(), &Config{Addr: addr, ConnectTimeout: time.Second}); err == nil {
		t.Error("expected dial error")
	}
}
