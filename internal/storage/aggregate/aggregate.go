// Package aggregate computes fill statistics over a window of points.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

// DefaultAccuracy is the relative accuracy of percentile estimates.
const DefaultAccuracy = 0.01

// StreamingAggregate maintains running percent-full statistics for one bin.
// Percentiles come from a DDSketch.
type StreamingAggregate struct {
	mu sync.Mutex

	binID string

	// Running statistics
	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// DDSketch for percentiles (nil if it could not be created)
	sketch *ddsketch.DDSketch
}

// New creates a new StreamingAggregate for binID.
func New(binID string) *StreamingAggregate {
	agg := &StreamingAggregate{
		binID: binID,
		min:   math.MaxFloat64,
		max:   -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(DefaultAccuracy)
	if err == nil {
		agg.sketch = sketch
	}
	return agg
}

// Add adds a percent-full value observed at timestampMs.
func (a *StreamingAggregate) Add(percent float64, timestampMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += percent

	if percent < a.min {
		a.min = percent
	}
	if percent > a.max {
		a.max = percent
	}

	if a.firstTs == 0 || timestampMs < a.firstTs {
		a.firstTs = timestampMs
	}
	if timestampMs > a.lastTs {
		a.lastTs = timestampMs
	}

	if a.sketch != nil {
		a.sketch.Add(percent)
	}
}

// Count returns the number of values added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Result returns the summary of everything added so far.
func (a *StreamingAggregate) Result() types.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := types.Summary{
		BinID: a.binID,
		From:  a.firstTs,
		To:    a.lastTs,
		Count: a.count,
	}
	if a.count == 0 {
		return result
	}

	result.Avg = a.sum / float64(a.count)
	result.Min = a.min
	result.Max = a.max

	if a.sketch != nil {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		result.SetPercentiles(p50, p90, p95)
	}
	return result
}

// Merge combines another aggregate of the same bin into this one.
func (a *StreamingAggregate) Merge(other *StreamingAggregate) {
	if other == nil || other == a {
		return
	}

	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}

	a.count += other.count
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	if a.firstTs == 0 || (other.firstTs != 0 && other.firstTs < a.firstTs) {
		a.firstTs = other.firstTs
	}
	if other.lastTs > a.lastTs {
		a.lastTs = other.lastTs
	}

	if a.sketch != nil && other.sketch != nil {
		a.sketch.MergeWith(other.sketch)
	}
}

// Summarize converts points to percent-full against heightCm and returns
// their statistics.
func Summarize(binID string, points []types.Point, heightCm float64) types.Summary {
	agg := New(binID)
	for _, p := range points {
		agg.Add(float64(forecast.PercentFull(p.DistanceCm, heightCm)), p.T)
	}
	return agg.Result()
}
