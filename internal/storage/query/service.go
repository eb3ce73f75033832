// Package query answers questions over the Parquet archive with DuckDB.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/storage/types"
	"github.com/xtxerr/binwatch/internal/validation"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

// Options configures the query service.
type Options struct {
	// Dir is the archive directory holding YYYY-MM-DD.parquet files.
	Dir string

	// MemoryLimit is passed to DuckDB's memory_limit setting.
	// Default: 256MB
	MemoryLimit string

	// BinHeightCm converts distances to fill percentages.
	// Default: 30
	BinHeightCm float64

	// Heights overrides BinHeightCm per bin id.
	Heights map[string]float64
}

// Service provides query capabilities over archived points.
type Service struct {
	mu sync.RWMutex

	opts Options
	db   *sql.DB

	// Statistics
	stats ServiceStats
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64 `json:"queries_executed"`
	RowsReturned    int64 `json:"rows_returned"`
	Errors          int64 `json:"errors"`
}

// DailyQuery selects archived days.
type DailyQuery struct {
	// BinID restricts the result to one bin. Empty selects all bins.
	BinID string

	// StartTime and EndTime bound the readings, [StartTime, EndTime).
	// Zero values are unbounded.
	StartTime time.Time
	EndTime   time.Time

	Limit int
}

// New creates a new query service backed by an in-memory DuckDB database.
func New(opts Options) (*Service, error) {
	if opts.Dir == "" {
		opts.Dir = config.DefaultArchiveDir
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = config.DefaultDuckDBMemoryLimit
	}
	if opts.BinHeightCm <= 0 {
		opts.BinHeightCm = config.DefaultBinHeightCm
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("SET memory_limit=%s", validation.QuoteLiteral(opts.MemoryLimit))); err != nil {
		db.Close()
		return nil, fmt.Errorf("set memory limit: %w", err)
	}

	return &Service{opts: opts, db: db}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Daily returns one row per bin and UTC day, ordered by bin then day.
// An archive without files yields an empty result.
func (s *Service) Daily(ctx context.Context, q DailyQuery) ([]types.DailyFill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.opts.Dir, "*.parquet")
	files, err := filepath.Glob(pattern)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("glob archive: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if q.BinID != "" {
		where = append(where, "bin_id = ?")
		args = append(args, q.BinID)
	}
	if !q.StartTime.IsZero() {
		where = append(where, "timestamp_ms >= ?")
		args = append(args, q.StartTime.UnixMilli())
	}
	if !q.EndTime.IsZero() {
		where = append(where, "timestamp_ms < ?")
		args = append(args, q.EndTime.UnixMilli())
	}

	stmt := fmt.Sprintf(`
		SELECT
			bin_id,
			CAST(floor(timestamp_ms / %d) AS BIGINT) AS day,
			count(*) AS readings,
			min(distance_cm), max(distance_cm), avg(distance_cm)
		FROM read_parquet(%s)`, dayMs, validation.QuoteLiteral(pattern))
	if len(where) > 0 {
		stmt += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	stmt += "\n\t\tGROUP BY bin_id, day\n\t\tORDER BY bin_id, day"
	if q.Limit > 0 {
		stmt += fmt.Sprintf("\n\t\tLIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	var results []types.DailyFill
	for rows.Next() {
		var (
			r   types.DailyFill
			day int64
		)
		if err := rows.Scan(&r.BinID, &day, &r.Readings, &r.MinDistanceCm, &r.MaxDistanceCm, &r.AvgDistanceCm); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Day = time.UnixMilli(day * dayMs).UTC()
		// The fullest moment of the day is the shortest distance.
		h := s.heightCm(r.BinID)
		r.PeakPercent = forecast.PercentFull(r.MinDistanceCm, h)
		r.AveragePercent = forecast.PercentFull(r.AvgDistanceCm, h)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

func (s *Service) heightCm(binID string) float64 {
	if h, ok := s.opts.Heights[binID]; ok && h > 0 {
		return h
	}
	return s.opts.BinHeightCm
}

// ExecuteSQL executes a raw SQL query using DuckDB. The view "points" is
// bound to the archive files when any exist.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.opts.Dir, "*.parquet")
	if files, _ := filepath.Glob(pattern); len(files) > 0 {
		view := fmt.Sprintf("CREATE OR REPLACE VIEW points AS SELECT * FROM read_parquet(%s)", validation.QuoteLiteral(pattern))
		if _, err := s.db.ExecContext(ctx, view); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("create view: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, rows.Err()
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
