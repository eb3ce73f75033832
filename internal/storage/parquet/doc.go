// Package parquet implements Parquet file reading and writing for series
// points.
//
// The package provides:
//   - PointWriter/PointReader for archived distance readings
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - Type conversion between storage types and Parquet rows
package parquet
