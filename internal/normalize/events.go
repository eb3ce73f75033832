package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// TimestampLayout is the canonical timestamp format: UTC with millisecond
// precision, e.g. 2026-10-17T09:30:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	binIDFields      = []string{"bin_id", "bin", "device_id"}
	timestampFields  = []string{"timestamp", "ts", "time"}
	labelFields      = []string{"label", "class", "category", "prediction"}
	confidenceFields = []string{"confidence", "score", "probability"}
	timeMsFields     = []string{"time_ms", "inference_ms", "latency_ms"}
	kindFields       = []string{"kind", "type"}
)

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Timestamp returns the payload timestamp. A non-empty upstream string is
// returned verbatim without validation; a numeric value is taken as epoch
// milliseconds; anything else yields now.
func Timestamp(raw map[string]any, now time.Time) string {
	f := newFields(raw)
	v, ok := f.lookup(timestampFields...)
	if ok {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		default:
			if ms, ok := NumOrNull(t); ok && ms > 0 {
				return FormatTime(time.UnixMilli(int64(ms)))
			}
		}
	}
	return FormatTime(now)
}

// ParseTime parses epoch milliseconds or an ISO-8601 timestamp, falling back
// to RFC 3339. ok=false means the caller should use ingestion time.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	}
	if t, err := iso8601.ParseString(s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// BinID returns the payload bin id, or "" when absent.
func BinID(raw map[string]any) string {
	id, _ := newFields(raw).text(binIDFields...)
	return id
}

// DetectKind decides which variant a payload describes. An explicit kind/type
// field wins; otherwise any classification field marks a classification.
func DetectKind(raw map[string]any) Kind {
	f := newFields(raw)
	if k, ok := f.text(kindFields...); ok {
		switch strings.ToLower(k) {
		case "classification", "classify", "vision":
			return KindClassification
		case "sensor", "sensors", "telemetry":
			return KindSensor
		}
	}
	if _, ok := f.lookup(labelFields...); ok {
		return KindClassification
	}
	if _, ok := f.lookup(confidenceFields...); ok {
		return KindClassification
	}
	if v, ok := f.lookup("recyclable"); ok {
		if _, isObject := v.(map[string]any); !isObject {
			return KindClassification
		}
	}
	return KindSensor
}

// Sensor normalizes a sensor payload. It never fails.
func Sensor(source Source, raw map[string]any, now time.Time) SensorEvent {
	readings, _ := Sensors(raw)
	return SensorEvent{
		Source:    payloadSource(raw, source),
		BinID:     BinID(raw),
		Timestamp: Timestamp(raw, now),
		Sensors:   readings,
	}
}

// Classification normalizes a classification payload. Invalid fields degrade
// to absent; it never fails.
func Classification(source Source, raw map[string]any, now time.Time) ClassificationEvent {
	f := newFields(raw)

	ev := ClassificationEvent{
		Source:    payloadSource(raw, source),
		BinID:     BinID(raw),
		Timestamp: Timestamp(raw, now),
	}

	if label, ok := f.text(labelFields...); ok {
		ev.Label = ptr(label)
	}
	if c, ok := f.number(confidenceFields...); ok {
		ev.Confidence = ptr(c)
	}
	if ms, ok := f.number(timeMsFields...); ok && ms >= 0 {
		ev.TimeMs = ptr(ms)
	}
	if v, ok := f.lookup("recyclable"); ok {
		ev.Recyclable = ParseRecyclable(v)
	}
	if v, ok := f.lookup("override"); ok && truthy(v) {
		ev.Override = 1
	}
	if inner, ok := f.object("sensors"); ok {
		if readings, d := Sensors(inner); d != DialectEmpty {
			ev.Sensors = &readings
		}
	}

	return ev
}

func payloadSource(raw map[string]any, fallback Source) Source {
	s, ok := newFields(raw).text("source")
	if !ok {
		return fallback
	}
	return ParseSource(s, fallback)
}
