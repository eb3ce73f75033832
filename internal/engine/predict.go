package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/storage/aggregate"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

// =============================================================================
// Prediction
// =============================================================================

// ProjectedPoint is one hourly projected fill level.
type ProjectedPoint struct {
	T       time.Time `json:"t"`
	Percent float64   `json:"percent"`
}

// Prediction is the forecast of one bin. Nil slope and ETAs mean there is not
// enough data for a trend.
type Prediction struct {
	BinID          string            `json:"bin_id"`
	Strategy       forecast.Strategy `json:"strategy"`
	Samples        int               `json:"samples"`
	CurrentPercent *float64          `json:"current_percent"`
	Points         []ProjectedPoint  `json:"points"`
	SlopePerHour   *float64          `json:"slope_per_hr"`
	ETA90          *time.Time        `json:"eta90"`
	ETA100         *time.Time        `json:"eta100"`
}

// Predict projects the fill level of binID over the next hours (default 24,
// at most config.MaxHorizonHours) using strategy. The moving-average strategy
// works on the last MovingAverageHistory of readings, the linear strategy on
// the last RegressionLookback.
func (e *Engine) Predict(binID string, hours int, strategy forecast.Strategy) (Prediction, error) {
	if binID == "" {
		return Prediction{}, errors.NewMissingField("bin_id")
	}
	if hours > config.MaxHorizonHours {
		return Prediction{}, errors.NewInvalidValue("hours", hours, fmt.Sprintf("must not exceed %d", config.MaxHorizonHours))
	}
	if hours <= 0 {
		hours = config.DefaultHorizonHours
	}
	if strategy == "" {
		strategy = forecast.StrategyMovingAverage
	}

	now := e.opts.Now()
	pred := Prediction{BinID: binID, Strategy: strategy, Points: []ProjectedPoint{}}

	var (
		values []float64
		slope  float64
		ok     bool
	)
	switch strategy {
	case forecast.StrategyMovingAverage:
		values = e.percents(binID, e.opts.MovingAverageHistory)
		slope, ok = forecast.MovingAverageSlope(values, e.opts.MovingAverageWindow)
		projected := forecast.ProjectMovingAverage(values, e.opts.MovingAverageWindow, hours, e.opts.DefaultSlopePerHour)
		pred.Points = hourly(now, projected)

	case forecast.StrategyLinear:
		samples := e.samples(binID, e.opts.RegressionLookback)
		values = make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Percent
		}
		var fit forecast.Fit
		fit, ok = forecast.LinearRegression(samples)
		if ok {
			slope = fit.Slope
			pred.Points = hourly(now, forecast.ProjectLinear(fit, now, hours))
		}

	default:
		return Prediction{}, errors.Wrapf(errors.ErrInvalidStrategy, "strategy %q", strategy)
	}

	pred.Samples = len(values)
	if len(values) > 0 {
		current := values[len(values)-1]
		pred.CurrentPercent = &current
		if ok {
			pred.SlopePerHour = &slope
			pred.ETA90 = forecast.ETA(now, current, slope, e.opts.WarningThreshold)
			pred.ETA100 = forecast.ETA(now, current, slope, e.opts.FullThreshold)
		}
	}
	return pred, nil
}

func hourly(from time.Time, values []float64) []ProjectedPoint {
	out := make([]ProjectedPoint, len(values))
	for i, v := range values {
		out[i] = ProjectedPoint{T: from.Add(time.Duration(i+1) * time.Hour), Percent: v}
	}
	return out
}

// percents returns the fill percentages of binID no older than d.
func (e *Engine) percents(binID string, d time.Duration) []float64 {
	samples := e.samples(binID, d)
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Percent
	}
	return out
}

func (e *Engine) samples(binID string, d time.Duration) []forecast.Sample {
	h := e.HeightCm(binID)
	points := e.series.Since(binID, d)
	out := make([]forecast.Sample, len(points))
	for i, p := range points {
		out[i] = forecast.Sample{
			T:       p.Time(),
			Percent: float64(forecast.PercentFull(p.DistanceCm, h)),
		}
	}
	return out
}

// =============================================================================
// Pickup ranking
// =============================================================================

// RankPickups ranks bins by soonest ETA to full using the linear strategy.
// Only bins expected full within horizonHours are returned; a non-positive
// horizon returns every bin with an ETA. Bins without an ETA are excluded.
// Concurrent calls for the same horizon share one computation.
func (e *Engine) RankPickups(horizonHours float64) []forecast.Candidate {
	key := strconv.FormatFloat(horizonHours, 'f', -1, 64)
	v, _, _ := e.rankGroup.Do(key, func() (interface{}, error) {
		return e.rankPickups(horizonHours), nil
	})
	ranked := v.([]forecast.Candidate)
	return append([]forecast.Candidate(nil), ranked...)
}

func (e *Engine) rankPickups(horizonHours float64) []forecast.Candidate {
	now := e.opts.Now()

	var candidates []forecast.Candidate
	for _, binID := range e.series.Bins() {
		candidates = append(candidates, e.candidate(binID, now))
	}

	ranked := forecast.Rank(candidates)
	return forecast.WithinHorizon(ranked, now, forecast.Hours(horizonHours))
}

func (e *Engine) candidate(binID string, now time.Time) forecast.Candidate {
	c := forecast.Candidate{BinID: binID, State: forecast.StateUnknown}

	latest, ok := e.series.Latest(binID)
	if !ok {
		c.Colour = forecast.Colour(c.State)
		return c
	}

	p, state, colour := e.fillState(binID, latest.DistanceCm)
	c.CurrentPercent = float64(p)
	c.State, c.Colour = state, colour

	fit, ok := forecast.LinearRegression(e.samples(binID, e.opts.RegressionLookback))
	if !ok {
		return c
	}
	slope := fit.Slope
	c.SlopePerHour = &slope
	c.ETAFull = forecast.ETA(now, c.CurrentPercent, slope, e.opts.FullThreshold)
	if h, ok := forecast.HoursTo(c.CurrentPercent, slope, e.opts.FullThreshold); ok {
		c.HoursToFull = &h
	}
	return c
}

// =============================================================================
// Bin status and statistics
// =============================================================================

// BinStatus is the dashboard view of one bin.
type BinStatus struct {
	BinID       string             `json:"bin_id"`
	HeightCm    float64            `json:"height_cm"`
	DistanceCm  *float64           `json:"distance_cm"`
	PercentFull *int               `json:"percent_full"`
	State       forecast.FillState `json:"state"`
	Colour      string             `json:"colour"`
	LastReading *time.Time         `json:"last_reading"`
	Points      int                `json:"points"`
}

// Bins returns the status of every bin with a series, sorted by bin id.
func (e *Engine) Bins() []BinStatus {
	ids := e.series.Bins()
	out := make([]BinStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.status(id))
	}
	return out
}

// Bin returns the status of one bin. A configured bin without readings is
// unknown; any other bin without readings is not found.
func (e *Engine) Bin(binID string) (BinStatus, error) {
	if binID == "" {
		return BinStatus{}, errors.NewMissingField("bin_id")
	}
	_, configured := e.opts.Heights[binID]
	if !configured && e.series.Len(binID) == 0 {
		return BinStatus{}, errors.NewNotFound("bin", binID)
	}
	return e.status(binID), nil
}

func (e *Engine) status(binID string) BinStatus {
	s := BinStatus{
		BinID:    binID,
		HeightCm: e.HeightCm(binID),
		Points:   e.series.Len(binID),
	}

	if latest, ok := e.series.Latest(binID); ok {
		p := forecast.PercentFull(latest.DistanceCm, s.HeightCm)
		d := latest.DistanceCm
		t := latest.Time()
		s.DistanceCm = &d
		s.PercentFull = &p
		s.LastReading = &t
	}

	s.State = forecast.StatusOf(s.PercentFull)
	s.Colour = forecast.Colour(s.State)
	return s
}

// Stats summarizes the fill level of binID over the last hours.
func (e *Engine) Stats(binID string, hours float64) (types.Summary, error) {
	if binID == "" {
		return types.Summary{}, errors.NewMissingField("bin_id")
	}
	return aggregate.Summarize(binID, e.series.Window(binID, hours), e.HeightCm(binID)), nil
}
