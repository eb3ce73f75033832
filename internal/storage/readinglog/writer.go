// Package readinglog is the append-only log of accepted distance readings.
//
// File format: one JSON object per line,
//
//	{"id":"BIN-001","distance_cm":12.5,"timestamp":"2026-10-17T09:30:00.000Z"}
//
// Lines are written one at a time with no batching. Replay skips lines it
// cannot decode instead of aborting.
package readinglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xtxerr/binwatch/internal/errors"
)

// Record is one log line.
type Record struct {
	ID         string  `json:"id"`
	DistanceCm float64 `json:"distance_cm"`
	Timestamp  string  `json:"timestamp"`
}

// Options configures the log writer.
type Options struct {
	// Sync fsyncs the file after every line.
	// Default: false (the OS page cache decides)
	Sync bool
}

// WriterStats holds log writer statistics.
type WriterStats struct {
	RecordsWritten int64 `json:"records_written"`
	BytesWritten   int64 `json:"bytes_written"`
	SyncsPerformed int64 `json:"syncs_performed"`
	Errors         int64 `json:"errors"`
}

// Writer appends records to a log file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	opts Options

	stats WriterStats
}

// Open opens (or creates) the log at path for appending.
func Open(path string, opts Options) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open reading log %s: %w", path, err)
	}

	return &Writer{path: path, file: f, opts: opts}, nil
}

// Append writes rec as one line. The line is on its way to disk (and on disk
// when Options.Sync is set) when Append returns.
func (w *Writer) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		w.stats.Errors++
		return errors.Wrapf(errors.ErrClosed, "reading log %s", w.path)
	}

	n, err := w.file.Write(line)
	w.stats.BytesWritten += int64(n)
	if err != nil {
		w.stats.Errors++
		return fmt.Errorf("write record: %w", err)
	}
	w.stats.RecordsWritten++

	if w.opts.Sync {
		if err := w.file.Sync(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync: %w", err)
		}
		w.stats.SyncsPerformed++
	}

	return nil
}

// Close closes the log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
