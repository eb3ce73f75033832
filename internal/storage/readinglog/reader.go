package readinglog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/xtxerr/binwatch/internal/normalize"
)

// Reading is a decoded, validated log line.
type Reading struct {
	BinID      string
	DistanceCm float64
	Time       time.Time
}

// ReaderStats holds replay statistics.
type ReaderStats struct {
	LinesRead    int64 `json:"lines_read"`
	RecordsRead  int64 `json:"records_read"`
	SkippedLines int64 `json:"skipped_lines"`
	BytesRead    int64 `json:"bytes_read"`
}

// line is the lenient decode target. bin_id is accepted when id is absent.
type line struct {
	ID         string   `json:"id"`
	BinID      string   `json:"bin_id"`
	DistanceCm *float64 `json:"distance_cm"`
	Timestamp  string   `json:"timestamp"`
}

// Iterator streams readings from a log.
type Iterator struct {
	r       *bufio.Reader
	current Reading
	err     error
	done    bool
	stats   ReaderStats
}

// NewIterator creates an iterator over r.
func NewIterator(r io.Reader) *Iterator {
	return &Iterator{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next valid reading, skipping malformed lines.
// Returns false at the end of input or on a read error.
func (it *Iterator) Next() bool {
	for !it.done && it.err == nil {
		raw, err := it.r.ReadBytes('\n')
		if len(raw) > 0 {
			it.stats.LinesRead++
			it.stats.BytesRead += int64(len(raw))
			if reading, ok := decodeLine(raw); ok {
				it.current = reading
				it.stats.RecordsRead++
				if errors.Is(err, io.EOF) {
					it.done = true
				}
				return true
			}
			if len(bytes.TrimSpace(raw)) > 0 {
				it.stats.SkippedLines++
			}
		}
		if errors.Is(err, io.EOF) {
			it.done = true
		} else if err != nil {
			it.err = err
		}
	}
	return false
}

// Reading returns the current reading.
func (it *Iterator) Reading() Reading {
	return it.current
}

// Err returns any read error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Stats returns replay statistics so far.
func (it *Iterator) Stats() ReaderStats {
	return it.stats
}

func decodeLine(raw []byte) (Reading, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Reading{}, false
	}

	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return Reading{}, false
	}

	id := l.ID
	if id == "" {
		id = l.BinID
	}
	if id == "" || l.DistanceCm == nil {
		return Reading{}, false
	}
	if math.IsNaN(*l.DistanceCm) || math.IsInf(*l.DistanceCm, 0) {
		return Reading{}, false
	}

	ts, ok := normalize.ParseTime(l.Timestamp)
	if !ok {
		return Reading{}, false
	}

	return Reading{BinID: id, DistanceCm: *l.DistanceCm, Time: ts}, true
}

// Replay streams every valid reading of the log at path to fn. A missing file
// is an empty log.
func Replay(path string, fn func(Reading)) (ReaderStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ReaderStats{}, nil
		}
		return ReaderStats{}, fmt.Errorf("open reading log: %w", err)
	}
	defer f.Close()

	it := NewIterator(f)
	for it.Next() {
		fn(it.Reading())
	}
	if err := it.Err(); err != nil {
		return it.Stats(), fmt.Errorf("read reading log: %w", err)
	}
	return it.Stats(), nil
}
