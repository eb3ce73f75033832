// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Point: A single distance reading of one bin
//   - Summary: Fill statistics over a window of points
//   - DailyFill: Per-day fill statistics computed from archived points
package types
