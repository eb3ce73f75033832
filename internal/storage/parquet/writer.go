package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/binwatch/internal/storage/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
// Unknown names select zstd.
func ParseCompressionType(s string) CompressionType {
	if ct, ok := LookupCompressionType(s); ok {
		return ct
	}
	return CompressionZstd
}

// LookupCompressionType parses a compression type string and reports whether
// the name is known.
func LookupCompressionType(s string) (CompressionType, bool) {
	switch s {
	case "snappy":
		return CompressionSnappy, true
	case "zstd":
		return CompressionZstd, true
	case "lz4":
		return CompressionLZ4, true
	case "gzip":
		return CompressionGzip, true
	case "none", "":
		return CompressionNone, true
	default:
		return CompressionZstd, false
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// PointRow represents a series point in Parquet format.
type PointRow struct {
	BinID       string  `parquet:"bin_id,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	DistanceCm  float64 `parquet:"distance_cm"`
}

// PointToRow converts a Point to a PointRow.
func PointToRow(p *types.Point) PointRow {
	return PointRow{
		BinID:       p.BinID,
		TimestampMs: p.T,
		DistanceCm:  p.DistanceCm,
	}
}

// RowToPoint converts a PointRow to a Point.
func RowToPoint(r *PointRow) types.Point {
	return types.Point{
		BinID:      r.BinID,
		T:          r.TimestampMs,
		DistanceCm: r.DistanceCm,
	}
}

// PointWriter writes points to a Parquet file.
type PointWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[PointRow]
	rowCount int64
	closed   bool
}

// NewPointWriter creates a new point Parquet writer. An existing file at
// path is truncated.
func NewPointWriter(path string, opts Options) (*PointWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[PointRow](f,
		parquet.Compression(getCompression(opts.Compression)),
	)

	return &PointWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes points to the Parquet file.
func (w *PointWriter) Write(points []types.Point) error {
	if len(points) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]PointRow, len(points))
	for i := range points {
		rows[i] = PointToRow(&points[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *PointWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *PointWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *PointWriter) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
