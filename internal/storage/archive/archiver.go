// Package archive writes daily Parquet snapshots of the series store.
//
// Each UTC day is one file named YYYY-MM-DD.parquet in the archive
// directory. A snapshot rewrites the files of every day still fully held in
// memory. Files are written to a temporary name and renamed into place, so
// readers never observe a partial file.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/storage/parquet"
	"github.com/xtxerr/binwatch/internal/storage/retention"
	"github.com/xtxerr/binwatch/internal/storage/types"
)

// Source provides the points to archive.
type Source interface {
	Bins() []string
	Window(binID string, hours float64) []types.Point
}

// Pruner is implemented by sources that drop expired points on request.
// The archiver prunes after each successful snapshot.
type Pruner interface {
	Prune() int
}

// Options configures an Archiver.
type Options struct {
	// Dir is the archive directory.
	Dir string

	// Interval between snapshots.
	// Default: 1 hour
	Interval time.Duration

	// Horizon is how far back memory is complete. Days starting before
	// now-Horizon are never rewritten, so a trimmed day cannot replace a
	// complete file. Default: series retention (30 days)
	Horizon time.Duration

	// Compression codec for the Parquet files.
	Compression parquet.CompressionType

	// Now overrides the clock. Default: time.Now
	Now func() time.Time

	// OnSnapshot is called after every scheduled snapshot.
	OnSnapshot func(Result, error)
}

// Stats holds archiver statistics.
type Stats struct {
	Runs         int64     `json:"runs"`
	FilesWritten int64     `json:"files_written"`
	RowsWritten  int64     `json:"rows_written"`
	PointsPruned int64     `json:"points_pruned"`
	Errors       int64     `json:"errors"`
	LastRun      time.Time `json:"last_run"`
}

// Result holds the outcome of one snapshot.
type Result struct {
	Files []string
	Rows  int64
}

// Archiver periodically snapshots the series store and applies the archive
// retention.
type Archiver struct {
	mu        sync.Mutex
	source    Source
	retention *retention.Manager
	opts      Options
	stats     Stats
	logger    *slog.Logger
}

// New creates an archiver. ret may be nil to disable cleanup.
func New(source Source, ret *retention.Manager, opts Options) *Archiver {
	if opts.Dir == "" {
		opts.Dir = config.DefaultArchiveDir
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultArchiveInterval
	}
	if opts.Horizon <= 0 {
		opts.Horizon = config.DefaultSeriesRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Archiver{
		source:    source,
		retention: ret,
		opts:      opts,
		logger:    logging.Component("archive"),
	}
}

// Run snapshots every Interval until ctx is done, then takes a final
// snapshot. It always returns nil; snapshot failures are logged.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.tick()
			return nil
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Archiver) tick() {
	res, err := a.Snapshot()
	if err != nil {
		a.logger.Warn("archive snapshot failed", "error", err)
	} else if len(res.Files) > 0 {
		a.logger.Info("archive snapshot written", "files", len(res.Files), "rows", res.Rows)
	}
	if a.opts.OnSnapshot != nil {
		a.opts.OnSnapshot(res, err)
	}

	// Points are only dropped once they are on disk.
	if p, ok := a.source.(Pruner); ok && err == nil {
		if n := p.Prune(); n > 0 {
			a.mu.Lock()
			a.stats.PointsPruned += int64(n)
			a.mu.Unlock()
			a.logger.Debug("series pruned", "points", n)
		}
	}

	if a.retention != nil {
		cleanup := a.retention.RunCleanup()
		if cleanup.FilesDeleted > 0 || len(cleanup.Errors) > 0 {
			a.logger.Info("archive retention",
				"deleted", cleanup.FilesDeleted,
				"freed_bytes", cleanup.BytesFreed,
				"errors", len(cleanup.Errors),
				"usage", a.retention.FormatDiskUsage())
		}
	}
}

// Snapshot writes one file per UTC day held in the source.
func (a *Archiver) Snapshot() (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.opts.Now()
	a.stats.Runs++
	a.stats.LastRun = now

	var all []types.Point
	for _, bin := range a.source.Bins() {
		all = append(all, a.source.Window(bin, 0)...)
	}

	days := types.SplitByDay(all)
	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)

	horizon := now.Add(-a.opts.Horizon)

	var (
		res  Result
		errs []error
	)
	for _, day := range keys {
		start, err := time.Parse(time.DateOnly, day)
		if err != nil || start.Before(horizon) {
			continue
		}

		path := filepath.Join(a.opts.Dir, retention.FileName(start))
		if err := a.writeDay(path, days[day]); err != nil {
			a.stats.Errors++
			errs = append(errs, err)
			continue
		}

		res.Files = append(res.Files, path)
		res.Rows += int64(len(days[day]))
	}

	a.stats.FilesWritten += int64(len(res.Files))
	a.stats.RowsWritten += res.Rows

	if len(errs) > 0 {
		return res, errors.Wrap(errors.Join(append([]error{errors.ErrArchive}, errs...)...), "snapshot")
	}
	return res, nil
}

// writeDay writes points to a temporary file and renames it over path.
func (a *Archiver) writeDay(path string, points []types.Point) error {
	tmp := path + ".tmp"

	w, err := parquet.NewPointWriter(tmp, parquet.Options{Compression: a.opts.Compression})
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if err := w.Write(points); err != nil {
		w.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Stats returns archiver statistics.
func (a *Archiver) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
