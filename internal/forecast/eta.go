package forecast

import (
	"math"
	"time"

	"github.com/xtxerr/binwatch/config"
)

// HoursTo returns the hours until a level rising at slope percent per hour
// reaches threshold. It is defined only for slope > 0 and current < threshold,
// and is then strictly positive and finite.
func HoursTo(current, slope, threshold float64) (float64, bool) {
	if !(slope > 0) || !(current < threshold) {
		return 0, false
	}
	h := (threshold - current) / slope
	if math.IsInf(h, 0) || math.IsNaN(h) || h <= 0 {
		return 0, false
	}
	return h, true
}

// ETA returns now + HoursTo(current, slope, threshold), or nil when no ETA
// is defined.
func ETA(now time.Time, current, slope, threshold float64) *time.Time {
	h, ok := HoursTo(current, slope, threshold)
	if !ok {
		return nil
	}
	// Durations cap at ~292 years; a slower trend has no useful ETA.
	if h > float64(math.MaxInt64)/float64(time.Hour) {
		return nil
	}
	t := now.Add(time.Duration(h * float64(time.Hour)))
	return &t
}

// Hours converts an hour count to a duration. NaN and non-positive values
// yield 0; values above config.MaxWindowHours are capped so the conversion
// never overflows.
func Hours(h float64) time.Duration {
	if !(h > 0) {
		return 0
	}
	h = math.Min(h, config.MaxWindowHours)
	return time.Duration(h * float64(time.Hour))
}
