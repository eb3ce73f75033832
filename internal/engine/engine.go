// Package engine is the binwatch core: it normalizes raw payloads, records
// them in the event store and the time series, and answers series, forecast
// and pickup ranking questions.
//
// Transports (HTTP, MQTT, the CLI) only call the operations defined here.
package engine

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/export"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/storage/series"
)

var engineLog = logging.Component("engine")

// =============================================================================
// Options
// =============================================================================

// Options configures an Engine. Zero values select the documented defaults.
type Options struct {
	// BinHeightCm is the empty-bin sensor distance.
	BinHeightCm float64

	// Heights overrides BinHeightCm per bin id.
	Heights map[string]float64

	// DefaultBinID is used for readings without a bin id.
	DefaultBinID string

	// MovingAverageWindow is the trailing window of the moving-average strategy.
	MovingAverageWindow int

	// MovingAverageHistory bounds the series fed to the moving-average strategy.
	MovingAverageHistory time.Duration

	// DefaultSlopePerHour is projected when no moving-average slope exists.
	DefaultSlopePerHour float64

	// RegressionLookback bounds the series fed to the linear strategy.
	RegressionLookback time.Duration

	// WarningThreshold and FullThreshold are the ETA targets in percent.
	WarningThreshold float64
	FullThreshold    float64

	// Commands receives override commands. Nil drops them.
	Commands CommandSink

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.BinHeightCm <= 0 {
		o.BinHeightCm = config.DefaultBinHeightCm
	}
	if o.DefaultBinID == "" {
		o.DefaultBinID = config.DefaultBinID
	}
	if o.MovingAverageWindow <= 0 {
		o.MovingAverageWindow = config.DefaultMovingAverageWindow
	}
	if o.MovingAverageHistory <= 0 {
		o.MovingAverageHistory = config.DefaultMovingAverageHistory
	}
	if o.DefaultSlopePerHour == 0 {
		o.DefaultSlopePerHour = config.DefaultSlopePerHour
	}
	if o.RegressionLookback <= 0 {
		o.RegressionLookback = config.DefaultRegressionLookback
	}
	if o.WarningThreshold <= 0 {
		o.WarningThreshold = config.DefaultWarningThreshold
	}
	if o.FullThreshold <= 0 {
		o.FullThreshold = config.DefaultFullThreshold
	}
	if o.Commands == nil {
		o.Commands = discardCommands{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine is safe for concurrent use. All state lives in the injected stores.
type Engine struct {
	events *event.Store
	series *series.Store
	opts   Options

	// Collapses concurrent pickup rankings for the same horizon.
	rankGroup singleflight.Group
}

// New creates an engine over the given stores.
func New(events *event.Store, series *series.Store, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		events: events,
		series: series,
		opts:   opts,
	}
}

// HeightCm returns the empty-bin distance of binID.
func (e *Engine) HeightCm(binID string) float64 {
	if h, ok := e.opts.Heights[binID]; ok && h > 0 {
		return h
	}
	return e.opts.BinHeightCm
}

// DefaultBinID returns the bin id assigned to readings without one.
func (e *Engine) DefaultBinID() string {
	return e.opts.DefaultBinID
}

// Events returns the event store.
func (e *Engine) Events() *event.Store {
	return e.events
}

// Series returns the time-series store.
func (e *Engine) Series() *series.Store {
	return e.series
}

// Last returns the most recent entry.
func (e *Engine) Last() (event.Entry, bool) {
	return e.events.Last()
}

// History returns the event history, oldest first.
func (e *Engine) History() []event.Entry {
	return e.events.History()
}

// Classifications returns up to limit classification entries, newest first.
func (e *Engine) Classifications(limit int) []event.Entry {
	return e.events.Classifications(limit)
}

// ExportCSV writes the event history as CSV.
func (e *Engine) ExportCSV(w io.Writer) error {
	return export.WriteCSV(w, e.events.History())
}

// =============================================================================
// Commands
// =============================================================================

// Command is sent to a bin controller.
type Command struct {
	Action    string `json:"action"`
	BinID     string `json:"bin_id"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// ActionOverride marks the current item as non-recyclable.
const ActionOverride = "override"

// CommandSink delivers commands to devices.
type CommandSink interface {
	SendCommand(ctx context.Context, cmd Command) error
}

// CommandSinkFunc adapts a function to a CommandSink.
type CommandSinkFunc func(ctx context.Context, cmd Command) error

// SendCommand calls f.
func (f CommandSinkFunc) SendCommand(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

type discardCommands struct{}

func (discardCommands) SendCommand(context.Context, Command) error { return nil }

// fillState derives the dashboard status of a distance reading.
func (e *Engine) fillState(binID string, distanceCm float64) (int, forecast.FillState, string) {
	p := forecast.PercentFull(distanceCm, e.HeightCm(binID))
	state := forecast.Status(p)
	return p, state, forecast.Colour(state)
}
