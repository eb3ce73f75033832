// Package export renders stored events for download.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/xtxerr/binwatch/internal/event"
)

// Columns is the fixed CSV column order.
var Columns = []string{
	"source", "kind", "bin_id", "label", "confidence", "time_ms", "timestamp",
	"recyclable", "override", "id", "recycle_ultrasonic", "general_ultrasonic", "weight",
}

// WriteCSV writes a header and one row per entry. Every value is quoted,
// embedded quotes are doubled and missing values are empty strings.
func WriteCSV(w io.Writer, entries []event.Entry) error {
	bw := bufio.NewWriter(w)
	writeRow(bw, Columns)
	for i := range entries {
		writeRow(bw, Row(&entries[i]))
	}
	return bw.Flush()
}

// Row renders one entry in Columns order.
func Row(e *event.Entry) []string {
	row := []string{
		string(e.Source),
		string(e.Kind),
		e.BinID,
		str(e.Label),
		num(e.Confidence),
		num(e.TimeMs),
		e.Timestamp,
		string(e.Recyclable),
		strconv.Itoa(e.Override),
		e.ID,
		"", "", "",
	}
	if s := e.Sensors; s != nil {
		if s.Recycle != nil {
			row[10] = num(s.Recycle.Ultrasonic)
		}
		if s.General != nil {
			row[11] = num(s.General.Ultrasonic)
		}
		if w, ok := s.Weight(); ok {
			row[12] = strconv.FormatFloat(w, 'f', -1, 64)
		}
	}
	return row
}

func writeRow(w *bufio.Writer, values []string) {
	for i, v := range values {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(v, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
