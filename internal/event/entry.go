// Package event holds stored events and the bounded event history.
//
// An Entry is the tagged union of the two normalized event variants. The
// Store keeps the most recent entry ("last result") and a fixed-capacity,
// insertion-ordered history, and notifies a Broadcaster of every change.
package event

import (
	"github.com/xtxerr/binwatch/internal/normalize"
)

// Entry is a stored event.
type Entry struct {
	ID         string                         `json:"id"`
	Kind       normalize.Kind                 `json:"kind"`
	Source     normalize.Source               `json:"source"`
	BinID      string                         `json:"bin_id,omitempty"`
	Timestamp  string                         `json:"timestamp"`
	Label      *string                        `json:"label,omitempty"`
	Confidence *float64                       `json:"confidence,omitempty"`
	TimeMs     *float64                       `json:"time_ms,omitempty"`
	Recyclable normalize.Recyclable           `json:"recyclable,omitempty"`
	Override   int                            `json:"override"`
	Sensors    *normalize.CompartmentReadings `json:"sensors,omitempty"`

	// Derived when a distance is resolvable.
	DistanceCm  *float64 `json:"distance_cm,omitempty"`
	PercentFull *int     `json:"percent_full,omitempty"`
	State       string   `json:"state,omitempty"`
	Colour      string   `json:"colour,omitempty"`
}

// FromSensor builds an entry from a sensor event.
func FromSensor(ev normalize.SensorEvent) Entry {
	e := Entry{
		Kind:      normalize.KindSensor,
		Source:    ev.Source,
		BinID:     ev.BinID,
		Timestamp: ev.Timestamp,
	}
	if !ev.Sensors.IsEmpty() {
		sensors := ev.Sensors
		e.Sensors = &sensors
	}
	return e
}

// FromClassification builds an entry from a classification event.
func FromClassification(ev normalize.ClassificationEvent) Entry {
	return Entry{
		Kind:       normalize.KindClassification,
		Source:     ev.Source,
		BinID:      ev.BinID,
		Timestamp:  ev.Timestamp,
		Label:      ev.Label,
		Confidence: ev.Confidence,
		TimeMs:     ev.TimeMs,
		Recyclable: ev.Recyclable,
		Override:   ev.Override,
		Sensors:    ev.Sensors,
	}
}

// IsClassification reports whether the entry carries a classification.
func (e Entry) IsClassification() bool {
	return e.Kind == normalize.KindClassification
}
