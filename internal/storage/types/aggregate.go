package types

import "time"

// Summary holds fill statistics of one bin over a window.
// This is the output of aggregate.Summarize.
type Summary struct {
	BinID string `json:"bin_id"`

	// Window
	From int64 `json:"from"` // Unix milliseconds of the first point
	To   int64 `json:"to"`   // Unix milliseconds of the last point

	// Basic statistics of percent-full (always present when Count > 0)
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`

	// Percentiles (nil if the window is empty)
	P50 *float64 `json:"p50,omitempty"`
	P90 *float64 `json:"p90,omitempty"`
	P95 *float64 `json:"p95,omitempty"`
}

// IsEmpty returns true if no points were aggregated.
func (s *Summary) IsEmpty() bool {
	return s.Count == 0
}

// HasPercentiles returns true if percentile data is available.
func (s *Summary) HasPercentiles() bool {
	return s.P50 != nil
}

// SetPercentiles sets all percentile values.
func (s *Summary) SetPercentiles(p50, p90, p95 float64) {
	s.P50 = &p50
	s.P90 = &p90
	s.P95 = &p95
}

// Duration returns the time covered by the window.
func (s *Summary) Duration() time.Duration {
	return time.Duration(s.To-s.From) * time.Millisecond
}

// DailyFill is one row of the archive daily summary.
type DailyFill struct {
	BinID          string    `json:"bin_id"`
	Day            time.Time `json:"day"`
	Readings       int64     `json:"readings"`
	MinDistanceCm  float64   `json:"min_distance_cm"`
	MaxDistanceCm  float64   `json:"max_distance_cm"`
	AvgDistanceCm  float64   `json:"avg_distance_cm"`
	PeakPercent    int       `json:"peak_percent"`
	AveragePercent int       `json:"average_percent"`
}
