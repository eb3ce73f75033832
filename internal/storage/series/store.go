// Package series holds the per-bin time series of distance readings.
//
// Each bin has an append-only sequence of points in insertion order (there
// is no sort step). Every append first writes a line to the reading log, then
// updates memory, then trims points older than the retention window from the
// head of that bin's series. Log write, append and trim happen under one lock.
package series

import (
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/normalize"
	"github.com/xtxerr/binwatch/internal/storage/readinglog"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

// Persister receives one record per accepted reading.
type Persister interface {
	Append(readinglog.Record) error
}

// Options configures a Store.
type Options struct {
	// Retention is the maximum age of a point.
	// Default: 30 days
	Retention time.Duration

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

// Stats holds store statistics.
type Stats struct {
	Bins      int   `json:"bins"`
	Points    int   `json:"points"`
	Appended  int64 `json:"appended"`
	Trimmed   int64 `json:"trimmed"`
	LogErrors int64 `json:"log_errors"`
}

// Store is the time-series store.
type Store struct {
	mu     sync.RWMutex
	series map[string][]types.Point
	log    Persister

	retention time.Duration
	now       func() time.Time

	appended  int64
	trimmed   int64
	logErrors int64
}

// New creates a store. A nil persister keeps the store memory-only.
func New(log Persister, opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = config.DefaultSeriesRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		series:    make(map[string][]types.Point),
		log:       log,
		retention: opts.Retention,
		now:       opts.Now,
	}
}

// Append records a reading. The log line is written before the in-memory
// update. If the log write fails the reading is still kept in memory and the
// wrapped ErrLogWrite is returned alongside the point.
func (s *Store) Append(binID string, distanceCm float64, ts time.Time) (types.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logErr error
	if s.log != nil {
		rec := readinglog.Record{
			ID:         binID,
			DistanceCm: distanceCm,
			Timestamp:  normalize.FormatTime(ts),
		}
		if err := s.log.Append(rec); err != nil {
			s.logErrors++
			logErr = errors.Wrapf(errors.Join(errors.ErrLogWrite, err), "persist reading for %s", binID)
		}
	}

	return s.appendLocked(binID, distanceCm, ts), logErr
}

func (s *Store) appendLocked(binID string, distanceCm float64, ts time.Time) types.Point {
	p := types.Point{BinID: binID, T: ts.UnixMilli(), DistanceCm: distanceCm}
	s.series[binID] = append(s.series[binID], p)
	s.appended++
	s.trimLocked(binID)
	return p
}

// trimLocked drops the expired prefix of one series.
func (s *Store) trimLocked(binID string) int {
	pts := s.series[binID]
	cutoff := s.now().Add(-s.retention).UnixMilli()

	n := 0
	for n < len(pts) && pts[n].T < cutoff {
		n++
	}
	if n == 0 {
		return 0
	}

	s.trimmed += int64(n)
	if n == len(pts) {
		delete(s.series, binID)
		return n
	}
	s.series[binID] = append([]types.Point(nil), pts[n:]...)
	return n
}

// Prune trims every series and returns the number of points removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for binID := range s.series {
		removed += s.trimLocked(binID)
	}
	return removed
}

// Window returns the points of binID with t >= now - hours, oldest first.
// hours <= 0 or NaN returns the whole series.
func (s *Store) Window(binID string, hours float64) []types.Point {
	return s.Since(binID, forecast.Hours(hours))
}

// Since returns the points of binID no older than d. d <= 0 returns the whole
// series. The result is a copy.
func (s *Store) Since(binID string, d time.Duration) []types.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.series[binID]
	if d <= 0 {
		return append([]types.Point(nil), pts...)
	}

	cutoff := s.now().Add(-d).UnixMilli()
	var out []types.Point
	for _, p := range pts {
		if p.T >= cutoff {
			out = append(out, p)
		}
	}
	return out
}

// Latest returns the most recently appended point of binID.
func (s *Store) Latest(binID string) (types.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.series[binID]
	if len(pts) == 0 {
		return types.Point{}, false
	}
	return pts[len(pts)-1], true
}

// Len returns the number of points held for binID.
func (s *Store) Len(binID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[binID])
}

// Bins returns the ids of all bins with at least one point, sorted.
func (s *Store) Bins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for id := range s.series {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Replay loads the log at path through the same append routine, without
// writing to the log again. Malformed lines are skipped and counted.
func (s *Store) Replay(path string) (readinglog.ReaderStats, error) {
	stats, err := readinglog.Replay(path, func(r readinglog.Reading) {
		s.mu.Lock()
		s.appendLocked(r.BinID, r.DistanceCm, r.Time)
		s.mu.Unlock()
	})
	if err != nil {
		return stats, errors.Wrapf(err, "replay %s", path)
	}

	logging.Component("series").Info("reading log replayed",
		"path", path,
		"records", stats.RecordsRead,
		"skipped", stats.SkippedLines,
		"bins", len(s.Bins()))
	return stats, nil
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := 0
	for _, pts := range s.series {
		points += len(pts)
	}
	return Stats{
		Bins:      len(s.series),
		Points:    points,
		Appended:  s.appended,
		Trimmed:   s.trimmed,
		LogErrors: s.logErrors,
	}
}
