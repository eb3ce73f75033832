package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/errors"
)

// Strategy names a trend estimator. Both are kept: they are tuned
// differently (a 5-point moving average versus a 7-day regression) and give
// observably different answers.
type Strategy string

const (
	// StrategyMovingAverage is the slope between the last two trailing
	// moving averages, assuming hourly samples.
	StrategyMovingAverage Strategy = "moving_average"
	// StrategyLinear is an ordinary least squares fit of percent against
	// elapsed hours.
	StrategyLinear Strategy = "linear"
)

// ParseStrategy resolves a strategy name. The empty string selects
// StrategyMovingAverage.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "moving_average", "moving-average", "ma":
		return StrategyMovingAverage, nil
	case "linear", "regression", "ols":
		return StrategyLinear, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidStrategy, s)
	}
}

// MovingAverage returns the trailing moving average of values. The first
// window-1 entries average over the points available so far.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 0 {
		window = config.DefaultMovingAverageWindow
	}

	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		out[i] = sum / float64(n)
	}
	return out
}

// MovingAverageSlope is the difference between the last two trailing moving
// averages. ok=false with fewer than two values.
func MovingAverageSlope(values []float64, window int) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	ma := MovingAverage(values, window)
	return ma[len(ma)-1] - ma[len(ma)-2], true
}

// ProjectMovingAverage extends values by steps hourly points, starting from
// the last observed value and adding the moving-average slope (or
// defaultSlope when it is undefined) each step. Every projected value is
// clamped to [0, 100]. steps is capped at config.MaxHorizonHours.
func ProjectMovingAverage(values []float64, window, steps int, defaultSlope float64) []float64 {
	if len(values) == 0 || steps <= 0 {
		return nil
	}
	steps = min(steps, config.MaxHorizonHours)

	slope, ok := MovingAverageSlope(values, window)
	if !ok {
		slope = defaultSlope
	}

	out := make([]float64, steps)
	v := values[len(values)-1]
	for i := range out {
		v = clamp(v+slope, 0, 100)
		out[i] = v
	}
	return out
}

// Sample is one observation for regression.
type Sample struct {
	T       time.Time
	Percent float64
}

// Fit is a regression line percent = Intercept + Slope*x, where x is hours
// since Origin.
type Fit struct {
	Slope     float64   `json:"slope_per_hr"`
	Intercept float64   `json:"intercept"`
	N         int       `json:"n"`
	Origin    time.Time `json:"origin"`
}

// At evaluates the fit at t.
func (f Fit) At(t time.Time) float64 {
	return f.Intercept + f.Slope*t.Sub(f.Origin).Hours()
}

// LinearRegression fits percent against hours since the first sample.
// ok=false with fewer than two samples or zero variance in time.
func LinearRegression(samples []Sample) (Fit, bool) {
	n := len(samples)
	if n < 2 {
		return Fit{}, false
	}

	origin := samples[0].T
	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.T.Sub(origin).Hours()
		sumY += s.Percent
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for _, s := range samples {
		dx := s.T.Sub(origin).Hours() - meanX
		sxx += dx * dx
		sxy += dx * (s.Percent - meanY)
	}
	if sxx == 0 {
		return Fit{}, false
	}

	slope := sxy / sxx
	return Fit{
		Slope:     slope,
		Intercept: meanY - slope*meanX,
		N:         n,
		Origin:    origin,
	}, true
}

// ProjectLinear evaluates fit at steps hourly points after from, clamped to
// [0, 100]. steps is capped at config.MaxHorizonHours.
func ProjectLinear(fit Fit, from time.Time, steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	steps = min(steps, config.MaxHorizonHours)
	out := make([]float64, steps)
	for i := range out {
		out[i] = clamp(fit.At(from.Add(time.Duration(i+1)*time.Hour)), 0, 100)
	}
	return out
}
