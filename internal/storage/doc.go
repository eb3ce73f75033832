// Package storage groups the binwatch persistence layers.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│ readinglog  │────▶│   series    │────▶│   archive   │
//	│   (JSONL)   │     │ (in-memory) │     │  (Parquet)  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  aggregate  │     │    query    │
//	                    │ (DDSketch)  │     │  (DuckDB)   │
//	                    └─────────────┘     └─────────────┘
//
// Every accepted distance reading is appended to the reading log before it
// enters the per-bin series, so the series can be rebuilt on startup. The
// archiver snapshots the series into one Parquet file per day and the
// retention policy removes files older than the configured horizon.
package storage
