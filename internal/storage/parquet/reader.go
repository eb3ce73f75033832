package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/binwatch/internal/storage/types"
)

// PointReader reads points from a Parquet file.
type PointReader struct {
	file   *os.File
	reader *parquet.GenericReader[PointRow]
	path   string
}

// NewPointReader creates a new point Parquet reader.
func NewPointReader(path string) (*PointReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[PointRow](f, parquet.ReadBufferSize(1024*1024))

	return &PointReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n points. It returns io.EOF once the file is exhausted.
func (r *PointReader) Read(n int) ([]types.Point, error) {
	rows := make([]PointRow, n)
	count, err := r.reader.Read(rows)

	points := make([]types.Point, count)
	for i := 0; i < count; i++ {
		points[i] = RowToPoint(&rows[i])
	}

	if err != nil && !(errors.Is(err, io.EOF) && count > 0) {
		return points, err
	}
	return points, nil
}

// ReadAll reads all points from the file.
func (r *PointReader) ReadAll() ([]types.Point, error) {
	rows := make([]PointRow, r.reader.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}

	n, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	points := make([]types.Point, n)
	for i := 0; i < n; i++ {
		points[i] = RowToPoint(&rows[i])
	}
	return points, nil
}

// NumRows returns the total number of rows in the file.
func (r *PointReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *PointReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *PointReader) Path() string {
	return r.path
}

// ReadPoints reads every point of the file at path.
func ReadPoints(path string) ([]types.Point, error) {
	r, err := NewPointReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}
