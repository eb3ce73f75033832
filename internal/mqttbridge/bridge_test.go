package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/normalize"
)

type call struct {
	kind   string
	source normalize.Source
	raw    map[string]any
}

type recordingIngester struct {
	mu    sync.Mutex
	calls []call
}

func (r *recordingIngester) IngestSensor(src normalize.Source, raw map[string]any) (event.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"sensor", src, raw})
	return event.Entry{Source: src, Kind: normalize.KindSensor}, nil
}

func (r *recordingIngester) IngestClassification(src normalize.Source, raw map[string]any) (event.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"classification", src, raw})
	return event.Entry{Source: src, Kind: normalize.KindClassification}, nil
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, payload.([]byte)})
	return p.token
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"bins/+/telemetry", "bins/BIN-001/telemetry", true},
		{"bins/+/telemetry", "bins/BIN-001/classification", false},
		{"bins/+/telemetry", "bins/telemetry", false},
		{"bins/+/telemetry", "bins/a/telemetry/extra", false},
		{"bins/#", "bins/a/b/c", true},
		{"bins/x", "bins/x", true},
	}
	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q): expected %v, got %v", tt.filter, tt.topic, tt.want, got)
		}
	}
}

func TestBinIDFromTopic(t *testing.T) {
	if got := BinIDFromTopic("bins/+/telemetry", "bins/BIN-042/telemetry"); got != "BIN-042" {
		t.Errorf("expected BIN-042, got %q", got)
	}
	if got := BinIDFromTopic("bins/+/telemetry", "other/BIN-042/telemetry"); got != "" {
		t.Errorf("expected empty bin id, got %q", got)
	}
}

func TestHandleRoutesByTopic(t *testing.T) {
	ing := &recordingIngester{}
	b := New(Config{}, ing, nil)

	b.handle("bins/BIN-001/telemetry", []byte(`{"distance": 12}`))
	b.handle("bins/BIN-002/classification", []byte(`{"label":"can","bin_id":"BIN-009"}`))
	b.handle("bins/BIN-003/telemetry", []byte(`not json`))
	b.handle("elsewhere", []byte(`{}`))

	if len(ing.calls) != 2 {
		t.Fatalf("expected 2 ingest calls, got %d", len(ing.calls))
	}

	first := ing.calls[0]
	if first.kind != "sensor" || first.source != normalize.SourceDevice {
		t.Errorf("expected sensor from device, got %s from %s", first.kind, first.source)
	}
	if first.raw["bin_id"] != "BIN-001" {
		t.Errorf("expected bin id from topic, got %v", first.raw["bin_id"])
	}

	second := ing.calls[1]
	if second.kind != "classification" || second.source != normalize.SourceVision {
		t.Errorf("expected classification from vision, got %s from %s", second.kind, second.source)
	}
	if second.raw["bin_id"] != "BIN-009" {
		t.Errorf("expected payload bin id to win, got %v", second.raw["bin_id"])
	}

	stats := b.Stats()
	if stats.Received != 4 || stats.Malformed != 1 {
		t.Errorf("expected received=4 malformed=1, got %+v", stats)
	}
}

func TestSendCommand(t *testing.T) {
	b := New(Config{}, &recordingIngester{}, nil)
	pub := &fakePublisher{token: newToken(nil, true)}
	b.publisher = pub

	cmd := engine.Command{Action: engine.ActionOverride, BinID: "BIN-007", ID: "abc"}
	if err := b.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.msgs))
	}
	if pub.msgs[0].topic != "bins/BIN-007/command" {
		t.Errorf("expected topic bins/BIN-007/command, got %s", pub.msgs[0].topic)
	}

	var got engine.Command
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got != cmd {
		t.Errorf("expected %+v, got %+v", cmd, got)
	}
	if b.Stats().Commands != 1 {
		t.Errorf("expected commands=1, got %d", b.Stats().Commands)
	}
}

func TestSendCommandFailures(t *testing.T) {
	t.Run("broker error", func(t *testing.T) {
		b := New(Config{}, &recordingIngester{}, nil)
		b.publisher = &fakePublisher{token: newToken(fmt.Errorf("not connected"), true)}

		if err := b.SendCommand(context.Background(), engine.Command{BinID: "B"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid bin id", func(t *testing.T) {
		pub := &fakePublisher{token: newToken(nil, true)}
		b := New(Config{}, &recordingIngester{}, nil)
		b.publisher = pub

		err := b.SendCommand(context.Background(), engine.Command{BinID: "bins/+"})
		if !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
		if len(pub.msgs) != 0 {
			t.Errorf("expected nothing published, got %d", len(pub.msgs))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		b := New(Config{PublishTimeout: 20 * time.Millisecond}, &recordingIngester{}, nil)
		b.publisher = &fakePublisher{token: newToken(nil, false)}

		err := b.SendCommand(context.Background(), engine.Command{BinID: "B"})
		if !errors.Is(err, errors.ErrPublish) {
			t.Errorf("expected ErrPublish, got %v", err)
		}
	})
}
