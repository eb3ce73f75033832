package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/normalize"
)

func TestWriteRead(t *testing.T) {
	percent := 83
	distance := 5.0
	msgs := []event.Message{
		{
			Type: event.MessageEvent,
			Entry: &event.Entry{
				ID:          "e1",
				Kind:        normalize.KindSensor,
				Source:      normalize.SourceDevice,
				BinID:       "BIN-001",
				Timestamp:   "2026-03-10T12:00:00.000Z",
				DistanceCm:  &distance,
				PercentFull: &percent,
				State:       "getting_full",
				Colour:      "orange",
			},
		},
		{Type: event.MessageRemoved, ID: "e1"},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, m := range msgs {
		if err := w.Write(m); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	r := NewReader(&buf)
	first, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Type != event.MessageEvent || first.Entry == nil {
		t.Fatalf("unexpected first message %+v", first)
	}
	if first.Entry.PercentFull == nil || *first.Entry.PercentFull != 83 {
		t.Errorf("expected percent_full=83, got %v", first.Entry.PercentFull)
	}
	if first.Entry.Colour != "orange" {
		t.Errorf("expected colour=orange, got %s", first.Entry.Colour)
	}

	second, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if second.Type != event.MessageRemoved || second.ID != "e1" {
		t.Errorf("unexpected second message %+v", second)
	}

	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF at end of stream, got %v", err)
	}
}

func TestEncodeFieldNames(t *testing.T) {
	s, err := Encode(event.Message{Type: event.MessageRemoved, ID: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	fields := s.GetFields()
	if fields["type"].GetStringValue() != "removed" {
		t.Errorf("expected type=removed, got %v", fields["type"])
	}
	if _, ok := fields["entry"]; ok {
		t.Error("empty entry should be omitted")
	}
}

func TestReadOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(event.Message{Type: event.MessageRemoved, ID: "long-identifier"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := NewReader(&buf)
	r.maxSize = 4
	if _, err := r.Read(); err == nil {
		t.Error("expected size limit error")
	}
}
