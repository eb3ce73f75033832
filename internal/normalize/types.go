package normalize

import "strings"

// Source identifies who sent an event.
type Source string

const (
	// SourceDevice is a bin controller posting ultrasonic and weight data.
	SourceDevice Source = "device"
	// SourceVision is the camera classifier.
	SourceVision Source = "vision"
	// SourceDashboard is an operator action (override, manual entry).
	SourceDashboard Source = "dashboard"
	// SourceReplay marks events reconstructed from the reading log.
	SourceReplay Source = "replay"
)

// ParseSource maps a payload string onto a known source, or returns fallback.
func ParseSource(s string, fallback Source) Source {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceDevice:
		return SourceDevice
	case SourceVision:
		return SourceVision
	case SourceDashboard:
		return SourceDashboard
	case SourceReplay:
		return SourceReplay
	default:
		return fallback
	}
}

// Kind tags the canonical event variant.
type Kind string

const (
	KindSensor         Kind = "sensor"
	KindClassification Kind = "classification"
)

// Recyclable is the classifier verdict. The zero value means unset.
type Recyclable string

const (
	RecyclableUnset        Recyclable = ""
	RecyclableYes          Recyclable = "yes"
	RecyclableNo           Recyclable = "no"
	RecyclableContaminated Recyclable = "contaminated"
)

// ParseRecyclable accepts only the three recognized tokens after trimming and
// lower-casing. Anything else, including non-strings, is unset.
func ParseRecyclable(v any) Recyclable {
	s, ok := v.(string)
	if !ok {
		return RecyclableUnset
	}
	switch Recyclable(strings.ToLower(strings.TrimSpace(s))) {
	case RecyclableYes:
		return RecyclableYes
	case RecyclableNo:
		return RecyclableNo
	case RecyclableContaminated:
		return RecyclableContaminated
	default:
		return RecyclableUnset
	}
}

// Reading holds the values of one compartment. Nil means not reported.
type Reading struct {
	Ultrasonic *float64 `json:"ultrasonic"`
	Weight     *float64 `json:"weight"`
}

// CompartmentReadings holds up to two compartments.
type CompartmentReadings struct {
	Recycle *Reading `json:"recycle,omitempty"`
	General *Reading `json:"general,omitempty"`
}

// IsEmpty reports whether no compartment was resolved.
func (c CompartmentReadings) IsEmpty() bool {
	return c.Recycle == nil && c.General == nil
}

// Weight returns the recycle weight, else the general weight.
func (c CompartmentReadings) Weight() (float64, bool) {
	if c.Recycle != nil && c.Recycle.Weight != nil {
		return *c.Recycle.Weight, true
	}
	if c.General != nil && c.General.Weight != nil {
		return *c.General.Weight, true
	}
	return 0, false
}

// SensorEvent is the canonical fill/weight telemetry event.
type SensorEvent struct {
	Source    Source              `json:"source"`
	BinID     string              `json:"bin_id,omitempty"`
	Timestamp string              `json:"timestamp"`
	Sensors   CompartmentReadings `json:"sensors"`
}

// ClassificationEvent is the canonical vision classification event.
type ClassificationEvent struct {
	Source     Source               `json:"source"`
	BinID      string               `json:"bin_id,omitempty"`
	Label      *string              `json:"label,omitempty"`
	Confidence *float64             `json:"confidence,omitempty"`
	TimeMs     *float64             `json:"time_ms,omitempty"`
	Timestamp  string               `json:"timestamp"`
	Recyclable Recyclable           `json:"recyclable,omitempty"`
	Override   int                  `json:"override"`
	Sensors    *CompartmentReadings `json:"sensors,omitempty"`
}
