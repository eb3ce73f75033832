// Package loader - Configuration Types
//
// LOCATION: internal/loader/types.go
//
// Defines the YAML configuration structure for binwatchd.
//
//	listen:     HTTP API address
//	log:        level, format
//	bin:        empty-bin height, default bin id, per-bin heights
//	history:    event history capacity
//	series:     retention, reading log
//	forecast:   trend and threshold parameters
//	archive:    Parquet snapshots, retention, DuckDB
//	tap:        protobuf event stream listener
//	mqtt:       device broker bridge
//	kafka:      event sink

package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/xtxerr/binwatch/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for binwatchd.
type Config struct {
	// Listen is the HTTP listen address.
	// Default: "0.0.0.0:8080"
	Listen string `yaml:"listen"`

	// AllowedOrigins restricts CORS. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Log       LogConfig       `yaml:"log"`
	Bin       BinConfig       `yaml:"bin"`
	History   HistoryConfig   `yaml:"history"`
	Series    SeriesConfig    `yaml:"series"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Tap       TapConfig       `yaml:"tap"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// JSON selects the JSON handler instead of text.
	JSON bool `yaml:"json"`
}

// =============================================================================
// Core
// =============================================================================

// BinConfig describes the bins.
type BinConfig struct {
	// HeightCm is the sensor distance of an empty bin.
	// Default: 30
	HeightCm float64 `yaml:"height_cm"`

	// DefaultID is assigned to readings without bin id.
	// Default: "BIN-001"
	DefaultID string `yaml:"default_id"`

	// Heights overrides HeightCm per bin id.
	Heights map[string]float64 `yaml:"heights"`
}

// KnownIDs returns the configured bin ids, default first.
func (b BinConfig) KnownIDs() []string {
	ids := make([]string, 0, len(b.Heights)+1)
	if b.DefaultID != "" {
		ids = append(ids, b.DefaultID)
	}
	rest := make([]string, 0, len(b.Heights))
	for id := range b.Heights {
		if id != b.DefaultID {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// HistoryConfig configures the event history.
type HistoryConfig struct {
	// Capacity is the number of entries kept.
	// Default: 200
	Capacity int `yaml:"capacity"`
}

// SeriesConfig configures the time-series store.
type SeriesConfig struct {
	// Retention is the maximum point age. Accepts Go ("720h") and
	// ISO-8601 ("P30D") durations.
	// Default: 30 days
	Retention Duration `yaml:"retention"`

	// LogPath is the append-only reading log. Empty disables persistence.
	// Default: "data/readings.jsonl"
	LogPath string `yaml:"log_path"`

	// Sync fsyncs the log after every reading.
	Sync bool `yaml:"sync"`
}

// ForecastConfig configures trend estimation.
type ForecastConfig struct {
	MovingAverageWindow  int      `yaml:"ma_window"`
	MovingAverageHistory Duration `yaml:"ma_history"`
	DefaultSlopePerHour  float64  `yaml:"default_slope"`
	Lookback             Duration `yaml:"lookback"`
	WarningThreshold     float64  `yaml:"warning_threshold"`
	FullThreshold        float64  `yaml:"full_threshold"`
}

// =============================================================================
// Archive
// =============================================================================

// ArchiveConfig configures daily Parquet snapshots.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir holds YYYY-MM-DD.parquet files.
	// Default: "data/archive"
	Dir string `yaml:"dir"`

	// Interval between snapshots.
	// Default: 1h
	Interval Duration `yaml:"interval"`

	// Retention is how long daily files are kept.
	// Default: 365 days
	Retention Duration `yaml:"retention"`

	// Compression is none, snappy, zstd, lz4 or gzip.
	// Default: zstd
	Compression string `yaml:"compression"`

	// MemoryLimit caps DuckDB.
	// Default: "256MB"
	MemoryLimit ByteSize `yaml:"memory_limit"`
}

// =============================================================================
// Hosts
// =============================================================================

// BroadcastConfig configures subscriber fan-out.
type BroadcastConfig struct {
	// Buffer is the per-subscriber queue length.
	// Default: 256
	Buffer int `yaml:"buffer"`
}

// TapConfig configures the protobuf event stream.
type TapConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig configures the device bridge.
type MQTTConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Broker              string `yaml:"broker"`
	ClientID            string `yaml:"client_id"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	TelemetryTopic      string `yaml:"telemetry_topic"`
	ClassificationTopic string `yaml:"classification_topic"`
	CommandTopic        string `yaml:"command_topic"`
	QoS                 int    `yaml:"qos"`
}

// KafkaConfig configures the event sink.
type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batch_size"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen:          config.DefaultListenAddress,
		ShutdownTimeout: Duration(config.DefaultShutdownTimeout),

		Log: LogConfig{Level: "info"},

		Bin: BinConfig{
			HeightCm:  config.DefaultBinHeightCm,
			DefaultID: config.DefaultBinID,
		},

		History: HistoryConfig{Capacity: config.DefaultHistoryCapacity},

		Series: SeriesConfig{
			Retention: Duration(config.DefaultSeriesRetention),
			LogPath:   config.DefaultReadingLogPath,
		},

		Forecast: ForecastConfig{
			MovingAverageWindow:  config.DefaultMovingAverageWindow,
			MovingAverageHistory: Duration(config.DefaultMovingAverageHistory),
			DefaultSlopePerHour:  config.DefaultSlopePerHour,
			Lookback:             Duration(config.DefaultRegressionLookback),
			WarningThreshold:     config.DefaultWarningThreshold,
			FullThreshold:        config.DefaultFullThreshold,
		},

		Archive: ArchiveConfig{
			Enabled:     true,
			Dir:         config.DefaultArchiveDir,
			Interval:    Duration(config.DefaultArchiveInterval),
			Retention:   Duration(config.DefaultArchiveRetention),
			Compression: "zstd",
			MemoryLimit: 256 * 1024 * 1024,
		},

		Broadcast: BroadcastConfig{Buffer: config.DefaultSubscriberBuffer},

		Tap: TapConfig{Listen: config.DefaultTapListenAddress},

		MQTT: MQTTConfig{
			Broker:              config.DefaultMQTTBroker,
			ClientID:            config.DefaultMQTTClientID,
			TelemetryTopic:      config.DefaultTelemetryTopic,
			ClassificationTopic: config.DefaultClassificationTopic,
			CommandTopic:        config.DefaultCommandTopic,
			QoS:                 1,
		},

		Kafka: KafkaConfig{
			Topic:     config.DefaultKafkaTopic,
			BatchSize: 100,
		},
	}
}

// =============================================================================
// Duration
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports Go durations ("90m"), ISO-8601 durations ("P30D", "PT48H") and
// plain integers (seconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ParseDuration parses a Go or ISO-8601 duration, or a plain number of
// seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		iso, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return iso.ToTimeDuration(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// =============================================================================
// ByteSize
// =============================================================================

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "100MB", "1GB", "500KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int64
		var i int64
		if err := unmarshal(&i); err != nil {
			return err
		}
		*b = ByteSize(i)
		return nil
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "100MB" or "1GB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffix first so "MB" is not read as "B".
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.multiplier, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// DuckDB renders the size as a DuckDB memory_limit value. DuckDB reads
// "MB" as 10^6 bytes, so binary units are spelled out.
func (b ByteSize) DuckDB() string {
	const kib, mib = 1024, 1024 * 1024
	if b%mib == 0 {
		return fmt.Sprintf("%dMiB", int64(b)/mib)
	}
	return fmt.Sprintf("%dKiB", (int64(b)+kib-1)/kib)
}
