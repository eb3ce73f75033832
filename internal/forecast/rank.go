package forecast

import (
	"sort"
	"time"
)

// Candidate is one bin considered for pickup.
type Candidate struct {
	BinID          string     `json:"bin_id"`
	CurrentPercent float64    `json:"current_percent"`
	SlopePerHour   *float64   `json:"slope_per_hr"`
	ETAFull        *time.Time `json:"eta100"`
	HoursToFull    *float64   `json:"hours_to_full,omitempty"`
	State          FillState  `json:"state"`
	Colour         string     `json:"colour"`
}

// Rank orders candidates by soonest ETA to full, ties broken by bin id.
// Candidates without an ETA are excluded, not ranked last: a bin whose fill
// cannot be predicted cannot be scheduled.
func Rank(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ETAFull != nil {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ETAFull, out[j].ETAFull
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return out[i].BinID < out[j].BinID
	})
	return out
}

// WithinHorizon keeps ranked candidates whose ETA is no later than
// now + horizon. A non-positive horizon keeps everything.
func WithinHorizon(ranked []Candidate, now time.Time, horizon time.Duration) []Candidate {
	if horizon <= 0 {
		return ranked
	}
	limit := now.Add(horizon)
	out := ranked[:0:0]
	for _, c := range ranked {
		if c.ETAFull != nil && !c.ETAFull.After(limit) {
			out = append(out, c)
		}
	}
	return out
}
