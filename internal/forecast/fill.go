// Package forecast turns distance readings into fill levels, trends and
// threshold ETAs.
//
// Nothing here fails for data-quality reasons: too few points or a
// degenerate fit yields ok=false or a nil ETA, never an error.
package forecast

import "math"

// Fill state boundaries in percent.
const (
	GettingFullPercent = 70
	FullPercent        = 90
)

// FillState is the per-bin fill status. It is a pure function of the current
// percent: there is no hysteresis, so a bin near a boundary can flip state on
// every reading.
type FillState string

const (
	StateUnknown     FillState = "unknown"
	StateOK          FillState = "ok"
	StateGettingFull FillState = "getting_full"
	StateFull        FillState = "full"
)

// Status maps a percent-full value to a fill state.
func Status(percent int) FillState {
	switch {
	case percent < GettingFullPercent:
		return StateOK
	case percent < FullPercent:
		return StateGettingFull
	default:
		return StateFull
	}
}

// StatusOf is Status for an optional reading; nil is StateUnknown.
func StatusOf(percent *int) FillState {
	if percent == nil {
		return StateUnknown
	}
	return Status(*percent)
}

// Colour is the dashboard colour of a fill state.
func Colour(s FillState) string {
	switch s {
	case StateOK:
		return "green"
	case StateGettingFull:
		return "orange"
	case StateFull:
		return "red"
	default:
		return "grey"
	}
}

// PercentFull converts a sensor distance into percent full for a bin whose
// empty-bin distance is height: round(100 * (1 - clamp(d, 0, h) / h)).
// A non-positive height yields 0.
func PercentFull(distanceCm, heightCm float64) int {
	if heightCm <= 0 || math.IsNaN(distanceCm) {
		return 0
	}
	d := clamp(distanceCm, 0, heightCm)
	return int(math.Round(100 * (1 - d/heightCm)))
}

// DistanceFromPercent is the inverse of PercentFull, exact up to the rounding
// PercentFull applies.
func DistanceFromPercent(percent, heightCm float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	return heightCm * (1 - clamp(percent, 0, 100)/100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
