package engine

import (
	"context"

	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/normalize"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

// Ingest normalizes raw as whichever variant it describes and stores it.
//
// Normalization never fails. The only error is a failed reading log write,
// in which case the entry and the in-memory point are still stored.
func (e *Engine) Ingest(source normalize.Source, raw map[string]any) (event.Entry, error) {
	if normalize.DetectKind(raw) == normalize.KindClassification {
		return e.IngestClassification(source, raw)
	}
	return e.IngestSensor(source, raw)
}

// IngestSensor stores a sensor payload. A reading without bin id is
// attributed to the default bin.
func (e *Engine) IngestSensor(source normalize.Source, raw map[string]any) (event.Entry, error) {
	now := e.opts.Now()

	ev := normalize.Sensor(source, raw, now)
	if ev.BinID == "" {
		ev.BinID = e.opts.DefaultBinID
	}

	entry := event.FromSensor(ev)
	distance, ok := normalize.ResolveDistance(ev.Sensors, raw)
	return e.record(entry, distance, ok)
}

// IngestClassification stores a classification payload. When the payload
// carries sensor readings with a distance, the distance also enters the
// time series.
func (e *Engine) IngestClassification(source normalize.Source, raw map[string]any) (event.Entry, error) {
	now := e.opts.Now()

	ev := normalize.Classification(source, raw, now)
	if ev.BinID == "" {
		ev.BinID = e.opts.DefaultBinID
	}

	entry := event.FromClassification(ev)

	var (
		distance float64
		ok       bool
	)
	if ev.Sensors != nil {
		distance, ok = normalize.ResolveDistance(*ev.Sensors, nil)
	}
	return e.record(entry, distance, ok)
}

// record derives the fill status, stores the entry and appends the distance
// to the series.
func (e *Engine) record(entry event.Entry, distance float64, hasDistance bool) (event.Entry, error) {
	if hasDistance {
		p, state, colour := e.fillState(entry.BinID, distance)
		entry.DistanceCm = &distance
		entry.PercentFull = &p
		entry.State = string(state)
		entry.Colour = colour
	}

	stored := e.events.Record(entry)
	if !hasDistance {
		return stored, nil
	}

	ts, ok := normalize.ParseTime(stored.Timestamp)
	if !ok {
		ts = e.opts.Now()
	}
	if _, err := e.series.Append(stored.BinID, distance, ts); err != nil {
		engineLog.Warn("reading kept in memory only", "bin_id", stored.BinID, "error", err)
		return stored, err
	}
	return stored, nil
}

// Query returns the series of binID over the last hours; hours <= 0 returns
// the whole series.
func (e *Engine) Query(binID string, hours float64) ([]types.Point, error) {
	if binID == "" {
		return nil, errors.NewMissingField("bin_id")
	}
	return e.series.Window(binID, hours), nil
}

// Acknowledge removes the entry with the given id from the history. An id
// that is not present is an idempotent success and leaves the last result
// unchanged. The id is returned either way.
func (e *Engine) Acknowledge(id string) (string, error) {
	if id == "" {
		return "", errors.NewMissingField("id")
	}
	if _, ok := e.events.RemoveByID(id); !ok {
		engineLog.Debug("acknowledge of unknown entry", "id", id)
	}
	return id, nil
}

// Override records the current item of a bin as non-recyclable, regardless
// of any recyclable value in raw, and sends an override command to the bin.
// The entry is stored even when the command cannot be delivered; the
// delivery error is then returned with ErrPublish.
func (e *Engine) Override(ctx context.Context, raw map[string]any) (Command, event.Entry, error) {
	now := e.opts.Now()

	ev := normalize.Classification(normalize.SourceDashboard, raw, now)
	if ev.BinID == "" {
		ev.BinID = e.opts.DefaultBinID
	}
	ev.Recyclable = normalize.RecyclableNo
	ev.Override = 1

	entry := e.events.Record(event.FromClassification(ev))

	cmd := Command{
		Action:    ActionOverride,
		BinID:     entry.BinID,
		ID:        entry.ID,
		Timestamp: entry.Timestamp,
	}
	if err := e.opts.Commands.SendCommand(ctx, cmd); err != nil {
		engineLog.Warn("override command not delivered", "bin_id", cmd.BinID, "error", err)
		return cmd, entry, errors.Wrapf(errors.Join(errors.ErrPublish, err), "send override to %s", cmd.BinID)
	}
	return cmd, entry, nil
}
