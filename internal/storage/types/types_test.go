package types

import (
	"testing"
	"time"
)

func TestPointTime(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	p := Point{T: now.UnixMilli()}

	if !p.Time().Equal(now) {
		t.Errorf("expected %v, got %v", now, p.Time())
	}
}

func TestSplitByDay(t *testing.T) {
	day1 := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 10, 17, 0, 1, 0, 0, time.UTC).UnixMilli()

	days := SplitByDay([]Point{
		{T: day1, DistanceCm: 1},
		{T: day2, DistanceCm: 2},
		{T: day2 + 1000, DistanceCm: 3},
	})

	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if got := days["2026-10-17"]; len(got) != 2 || got[1].DistanceCm != 3 {
		t.Errorf("unexpected 2026-10-17 points: %+v", got)
	}
}

func TestSummaryPercentiles(t *testing.T) {
	s := Summary{}

	if s.HasPercentiles() {
		t.Error("expected no percentiles")
	}
	if !s.IsEmpty() {
		t.Error("expected empty summary")
	}

	s.SetPercentiles(50, 90, 95)
	if !s.HasPercentiles() {
		t.Error("expected percentiles")
	}
	if *s.P90 != 90 {
		t.Errorf("expected P90=90, got %v", *s.P90)
	}
}

func TestSummaryDuration(t *testing.T) {
	s := Summary{From: 0, To: 3_600_000}
	if s.Duration() != time.Hour {
		t.Errorf("expected 1h, got %v", s.Duration())
	}
}
