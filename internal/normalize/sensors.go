package normalize

import "fmt"

// Dialect identifies which payload shape produced a CompartmentReadings.
type Dialect int

const (
	// DialectEmpty means no recognized sensor field was present.
	DialectEmpty Dialect = iota
	// DialectDualCompartment is a payload with nested per-compartment objects.
	DialectDualCompartment
	// DialectLegacyFlat is a single-compartment device sending flat fields.
	DialectLegacyFlat
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectEmpty:
		return "empty"
	case DialectDualCompartment:
		return "dual_compartment"
	case DialectLegacyFlat:
		return "legacy_flat"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

var (
	recycleAliases = []string{"recycle", "recyclable", "blue", "comp1"}
	generalAliases = []string{"general", "trash", "black", "comp2", "non-recyclable"}
	distanceFields = []string{"ultrasonic", "distance", "dist"}
	weightFields   = []string{"weight", "weight_kg"}
)

// sensorDialect is one total parse function. ok=false means the payload is
// not in this dialect and the next one should be tried.
type sensorDialect struct {
	kind  Dialect
	parse func(f fields) (CompartmentReadings, bool)
}

// sensorDialects are tried in order; the first match wins.
var sensorDialects = []sensorDialect{
	{kind: DialectDualCompartment, parse: parseDualCompartment},
	{kind: DialectLegacyFlat, parse: parseLegacyFlat},
}

// Sensors maps an arbitrary sensor object onto CompartmentReadings. A payload
// that wraps its readings in a "sensors" object is unwrapped first. It never
// fails; unrecognized input yields empty readings.
func Sensors(raw map[string]any) (CompartmentReadings, Dialect) {
	if raw == nil {
		return CompartmentReadings{}, DialectEmpty
	}

	f := newFields(raw)
	if inner, ok := f.object("sensors"); ok {
		if readings, d := parseDialects(newFields(inner)); d != DialectEmpty {
			return readings, d
		}
	}
	return parseDialects(f)
}

func parseDialects(f fields) (CompartmentReadings, Dialect) {
	for _, d := range sensorDialects {
		if readings, ok := d.parse(f); ok {
			return readings, d.kind
		}
	}
	return CompartmentReadings{}, DialectEmpty
}

func parseDualCompartment(f fields) (CompartmentReadings, bool) {
	var out CompartmentReadings
	if obj, ok := f.object(recycleAliases...); ok {
		out.Recycle = compartment(newFields(obj))
	}
	if obj, ok := f.object(generalAliases...); ok {
		out.General = compartment(newFields(obj))
	}
	return out, !out.IsEmpty()
}

func parseLegacyFlat(f fields) (CompartmentReadings, bool) {
	r := compartment(f)
	if r.Ultrasonic == nil && r.Weight == nil {
		return CompartmentReadings{}, false
	}
	return CompartmentReadings{Recycle: r}, true
}

func compartment(f fields) *Reading {
	r := &Reading{}
	if d, ok := f.number(distanceFields...); ok {
		r.Ultrasonic = ptr(d)
	}
	if w, ok := f.number(weightFields...); ok {
		r.Weight = ptr(w)
	}
	return r
}

// ResolveDistance derives the single distance used for the time series:
// recycle ultrasonic, else general ultrasonic, else a flat legacy
// ultrasonic/distance/dist field of raw (or of its "sensors" object).
func ResolveDistance(readings CompartmentReadings, raw map[string]any) (float64, bool) {
	if readings.Recycle != nil && readings.Recycle.Ultrasonic != nil {
		return *readings.Recycle.Ultrasonic, true
	}
	if readings.General != nil && readings.General.Ultrasonic != nil {
		return *readings.General.Ultrasonic, true
	}
	if raw == nil {
		return 0, false
	}

	f := newFields(raw)
	if d, ok := f.number(distanceFields...); ok {
		return d, true
	}
	if inner, ok := f.object("sensors"); ok {
		return newFields(inner).number(distanceFields...)
	}
	return 0, false
}
