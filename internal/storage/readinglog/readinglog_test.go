package readinglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/binwatch/internal/errors"
)

func TestWriter_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "readings.jsonl")

	w, err := Open(path, Options{Sync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	recs := []Record{
		{ID: "BIN-001", DistanceCm: 25, Timestamp: "2026-10-17T08:00:00.000Z"},
		{ID: "BIN-001", DistanceCm: 20.5, Timestamp: "2026-10-17T09:00:00.000Z"},
		{ID: "BIN-002", DistanceCm: 7, Timestamp: "2026-10-17T09:30:00.000Z"},
	}
	for _, r := range recs {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	stats := w.Stats()
	if stats.RecordsWritten != 3 {
		t.Errorf("expected records_written=3, got %d", stats.RecordsWritten)
	}
	if stats.SyncsPerformed != 3 {
		t.Errorf("expected syncs_performed=3, got %d", stats.SyncsPerformed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var got []Reading
	rstats, err := Replay(path, func(r Reading) { got = append(got, r) })
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	if got[1].BinID != "BIN-001" || got[1].DistanceCm != 20.5 {
		t.Errorf("unexpected second reading: %+v", got[1])
	}
	if got[2].Time.UTC().Hour() != 9 || got[2].Time.UTC().Minute() != 30 {
		t.Errorf("unexpected timestamp: %v", got[2].Time)
	}
	if rstats.SkippedLines != 0 {
		t.Errorf("expected no skipped lines, got %d", rstats.SkippedLines)
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "r.jsonl"), Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w.Close()

	err = w.Append(Record{ID: "x", DistanceCm: 1, Timestamp: "2026-10-17T09:30:00Z"})
	if !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed appending to closed log, got %v", err)
	}
	if got := w.Stats().Errors; got != 1 {
		t.Errorf("expected 1 error in stats, got %d", got)
	}
}

func TestWriter_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.jsonl")

	for i := 0; i < 2; i++ {
		w, err := Open(path, Options{})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		w.Append(Record{ID: "BIN-001", DistanceCm: float64(i), Timestamp: "2026-10-17T09:30:00Z"})
		w.Close()
	}

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 lines after reopen, got %d", n)
	}
}

func TestIterator_SkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"BIN-001","distance_cm":10,"timestamp":"2026-10-17T09:00:00Z"}`,
		`not json`,
		``,
		`{"distance_cm":10,"timestamp":"2026-10-17T09:00:00Z"}`,
		`{"id":"BIN-001","timestamp":"2026-10-17T09:00:00Z"}`,
		`{"id":"BIN-001","distance_cm":"12cm","timestamp":"2026-10-17T09:00:00Z"}`,
		`{"id":"BIN-001","distance_cm":10,"timestamp":"whenever"}`,
		`{"bin_id":"BIN-002","distance_cm":4,"timestamp":"2026-10-17T10:00:00Z"}`,
		`{"id":"BIN-003","distance_cm":1,"timestamp":"1760693400000"}`,
		`{"id":"BIN-001","distance_cm":3,"timestamp":"2026-10-17T11:00:00Z"`,
	}, "\n")

	it := NewIterator(strings.NewReader(input))
	var ids []string
	for it.Next() {
		ids = append(ids, it.Reading().BinID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"BIN-001", "BIN-002", "BIN-003"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, ids)
	}

	stats := it.Stats()
	if stats.SkippedLines != 6 {
		t.Errorf("expected 6 skipped lines, got %d", stats.SkippedLines)
	}
	if stats.RecordsRead != 3 {
		t.Errorf("expected 3 records, got %d", stats.RecordsRead)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	called := false
	stats, err := Replay(filepath.Join(t.TempDir(), "absent.jsonl"), func(Reading) { called = true })
	if err != nil {
		t.Fatalf("missing log should be empty, got %v", err)
	}
	if called || stats.RecordsRead != 0 {
		t.Error("expected no readings from a missing log")
	}
}
