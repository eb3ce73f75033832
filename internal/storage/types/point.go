package types

import "time"

// Point is one time-series sample: the distance the ultrasonic sensor of a bin
// measured at T.
type Point struct {
	BinID      string  `json:"bin_id"`
	T          int64   `json:"t"` // Unix timestamp in milliseconds
	DistanceCm float64 `json:"distance_cm"`
}

// Time returns T as a time.Time.
func (p Point) Time() time.Time {
	return time.UnixMilli(p.T)
}

// SplitByDay groups points by the UTC calendar day of T, keyed "2006-01-02".
// Order within a day is preserved.
func SplitByDay(points []Point) map[string][]Point {
	out := make(map[string][]Point)
	for _, p := range points {
		day := p.Time().UTC().Format(time.DateOnly)
		out[day] = append(out[day], p)
	}
	return out
}
