package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/xtxerr/binwatch/internal/storage/parquet"
	"github.com/xtxerr/binwatch/internal/storage/retention"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

type memSource map[string][]types.Point

func (m memSource) Bins() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m memSource) Window(binID string, hours float64) []types.Point {
	return m[binID]
}

func at(day, hour int) int64 {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC).UnixMilli()
}

func testNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestSnapshotWritesOneFilePerDay(t *testing.T) {
	dir := t.TempDir()
	src := memSource{
		"BIN-001": {
			{BinID: "BIN-001", T: at(8, 10), DistanceCm: 20},
			{BinID: "BIN-001", T: at(9, 10), DistanceCm: 15},
			{BinID: "BIN-001", T: at(9, 23), DistanceCm: 12},
		},
		"BIN-002": {
			{BinID: "BIN-002", T: at(9, 5), DistanceCm: 8},
		},
	}

	a := New(src, nil, Options{Dir: dir, Now: testNow})
	res, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(res.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(res.Files))
	}
	if res.Rows != 4 {
		t.Errorf("expected rows=4, got %d", res.Rows)
	}

	points, err := parquet.ReadPoints(filepath.Join(dir, "2026-03-09.parquet"))
	if err != nil {
		t.Fatalf("ReadPoints: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points for 2026-03-09, got %d", len(points))
	}
	if points[0].BinID != "BIN-001" || points[2].BinID != "BIN-002" {
		t.Errorf("expected bins in sorted order, got %+v", points)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestSnapshotSkipsDaysBeforeHorizon(t *testing.T) {
	dir := t.TempDir()
	src := memSource{
		"BIN-001": {
			{BinID: "BIN-001", T: at(1, 10), DistanceCm: 20},
			{BinID: "BIN-001", T: at(10, 10), DistanceCm: 10},
		},
	}

	a := New(src, nil, Options{Dir: dir, Horizon: 48 * time.Hour, Now: testNow})
	res, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(res.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(res.Files))
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-03-01.parquet")); !os.IsNotExist(err) {
		t.Error("day before horizon should not be written")
	}
}

func TestSnapshotOverwritesDay(t *testing.T) {
	dir := t.TempDir()
	src := memSource{
		"BIN-001": {{BinID: "BIN-001", T: at(10, 1), DistanceCm: 20}},
	}
	a := New(src, nil, Options{Dir: dir, Now: testNow})

	if _, err := a.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	src["BIN-001"] = append(src["BIN-001"], types.Point{BinID: "BIN-001", T: at(10, 2), DistanceCm: 18})
	if _, err := a.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	points, err := parquet.ReadPoints(filepath.Join(dir, "2026-03-10.parquet"))
	if err != nil {
		t.Fatalf("ReadPoints: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("expected 2 points after second snapshot, got %d", len(points))
	}

	stats := a.Stats()
	if stats.Runs != 2 || stats.FilesWritten != 2 || stats.RowsWritten != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRunTakesFinalSnapshotAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2020-01-01.parquet")
	if err := os.WriteFile(old, []byte("old"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := memSource{
		"BIN-001": {{BinID: "BIN-001", T: at(10, 1), DistanceCm: 20}},
	}
	ret := retention.New(retention.Options{Dir: dir, Retention: 24 * time.Hour, Now: testNow})
	a := New(src, ret, Options{Dir: dir, Interval: time.Hour, Now: testNow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "2026-03-10.parquet")); err != nil {
		t.Errorf("expected final snapshot file: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired archive file should be deleted")
	}
}

type pruningSource struct {
	memSource
	calls int
}

func (p *pruningSource) Prune() int {
	p.calls++
	return 2
}

func TestRunPrunesSourceAfterSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := &pruningSource{memSource: memSource{
		"BIN-001": {{BinID: "BIN-001", T: at(10, 1), DistanceCm: 20}},
	}}
	a := New(src, nil, Options{Dir: dir, Interval: time.Hour, Now: testNow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("expected 1 prune call, got %d", src.calls)
	}
	if got := a.Stats().PointsPruned; got != 2 {
		t.Errorf("expected points_pruned=2, got %d", got)
	}
}

func TestRunSkipsPruneWhenSnapshotFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir := filepath.Join(blocker, "archive")
	src := &pruningSource{memSource: memSource{
		"BIN-001": {{BinID: "BIN-001", T: at(10, 1), DistanceCm: 20}},
	}}
	a := New(src, nil, Options{Dir: dir, Interval: time.Hour, Now: testNow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	if src.calls != 0 {
		t.Errorf("expected no prune after failed snapshot, got %d calls", src.calls)
	}
}
