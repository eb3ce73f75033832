// Package retention deletes archive files older than the archive retention.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/binwatch/config"
)

// FileLayout is the archive file name layout (without extension). One file
// holds one UTC day.
const FileLayout = "2006-01-02"

// Options configures a Manager.
type Options struct {
	// Dir is the archive directory.
	Dir string

	// Retention is how long archive files are kept.
	// Default: 365 days
	Retention time.Duration

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

// Manager handles cleanup of expired archive files.
type Manager struct {
	mu    sync.RWMutex
	opts  Options
	stats ManagerStats
}

// ManagerStats holds manager statistics.
type ManagerStats struct {
	LastRunTime  time.Time `json:"last_run_time"`
	FilesDeleted int64     `json:"files_deleted"`
	BytesFreed   int64     `json:"bytes_freed"`
	FilesSkipped int64     `json:"files_skipped"`
	Errors       int64     `json:"errors"`
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	FilesDeleted int
	BytesFreed   int64
	FilesSkipped int
	Errors       []error
}

// New creates a new retention manager.
func New(opts Options) *Manager {
	if opts.Dir == "" {
		opts.Dir = config.DefaultArchiveDir
	}
	if opts.Retention <= 0 {
		opts.Retention = config.DefaultArchiveRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts}
}

// RunCleanup deletes expired files.
func (m *Manager) RunCleanup() CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRunTime = m.opts.Now()

	result := m.cleanup()
	m.stats.FilesDeleted += int64(result.FilesDeleted)
	m.stats.BytesFreed += result.BytesFreed
	m.stats.FilesSkipped += int64(result.FilesSkipped)
	m.stats.Errors += int64(len(result.Errors))

	return result
}

func (m *Manager) cleanup() CleanupResult {
	var result CleanupResult

	// A day file is expired once its whole day is older than the cutoff.
	cutoff := m.opts.Now().Add(-m.opts.Retention)

	files, err := listFiles(m.opts.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("list files: %w", err))
		}
		return result
	}

	for _, file := range files {
		day, err := ParseFileTime(file.name)
		if err != nil {
			result.FilesSkipped++
			continue
		}

		if day.Add(24 * time.Hour).After(cutoff) {
			result.FilesSkipped++
			continue
		}

		if err := os.Remove(file.path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", file.path, err))
			continue
		}

		result.FilesDeleted++
		result.BytesFreed += file.size
	}

	return result
}

// fileInfo holds information about a file.
type fileInfo struct {
	name string
	path string
	size int64
}

// listFiles lists all Parquet files in a directory, oldest first.
func listFiles(dir string) ([]fileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != ".parquet" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, fileInfo{
			name: name,
			path: filepath.Join(dir, name),
			size: info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})

	return files, nil
}

// ParseFileTime extracts the UTC day from an archive file name.
func ParseFileTime(name string) (time.Time, error) {
	base := name[:len(name)-len(filepath.Ext(name))]
	return time.Parse(FileLayout, base)
}

// FileName returns the archive file name for the UTC day containing t.
func FileName(t time.Time) string {
	return t.UTC().Format(FileLayout) + ".parquet"
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// DiskUsage holds disk usage information.
type DiskUsage struct {
	FileCount int   `json:"file_count"`
	TotalSize int64 `json:"total_size"`
}

// GetDiskUsage returns the disk usage of the archive directory.
func (m *Manager) GetDiskUsage() DiskUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files, err := listFiles(m.opts.Dir)
	if err != nil {
		return DiskUsage{}
	}

	var usage DiskUsage
	for _, f := range files {
		usage.FileCount++
		usage.TotalSize += f.size
	}
	return usage
}

// FormatDiskUsage returns a formatted string of disk usage.
func (m *Manager) FormatDiskUsage() string {
	u := m.GetDiskUsage()
	return fmt.Sprintf("%d files, %s", u.FileCount, formatBytes(u.TotalSize))
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
