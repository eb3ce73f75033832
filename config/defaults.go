// Package config provides configuration defaults and utilities
// for the binwatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml, a .env file or
// BINWATCH_* environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultTapListenAddress is the default listen address of the event tap.
	// Override via config: tap.listen
	DefaultTapListenAddress = "127.0.0.1:9161"

	// DefaultMaxMessageSize limits a single tap frame to prevent OOM.
	// Override via config: tap.max_message_size
	DefaultMaxMessageSize = 4 * 1024 * 1024

	// DefaultShutdownTimeout bounds the graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Bin Defaults
// =============================================================================

const (
	// DefaultBinHeightCm is the distance the ultrasonic sensor reads when the
	// bin is empty. Percent-full is derived against this value.
	// Override via config: bin.height_cm (or per bin: bin.heights)
	DefaultBinHeightCm = 30.0

	// DefaultBinID is assigned to sensor readings that carry no bin_id.
	// Single-bin deployments never send one.
	// Override via config: bin.default_id
	DefaultBinID = "BIN-001"
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultHistoryCapacity is the number of events kept in the rolling
	// history. Inserting into a full history evicts the oldest entry.
	// Override via config: history.capacity
	DefaultHistoryCapacity = 200

	// DefaultClassificationLimit is the page size of the classification feed.
	DefaultClassificationLimit = 20

	// MaxClassificationLimit caps the classification feed page size.
	MaxClassificationLimit = 200

	// DefaultSeriesRetention is the maximum age of time-series points.
	// Override via config: series.retention
	DefaultSeriesRetention = 30 * 24 * time.Hour

	// DefaultReadingLogPath is the append-only reading log.
	// Override via config: series.log_path
	DefaultReadingLogPath = "data/readings.jsonl"
)

// =============================================================================
// Forecast Defaults
// =============================================================================

const (
	// DefaultMovingAverageWindow is the trailing window of the moving-average
	// trend strategy, in samples.
	// Override via config: forecast.ma_window
	DefaultMovingAverageWindow = 5

	// DefaultMovingAverageHistory bounds the samples fed to the moving-average
	// strategy.
	// Override via config: forecast.ma_history
	DefaultMovingAverageHistory = 24 * time.Hour

	// DefaultSlopePerHour is projected when no trend can be derived.
	// Override via config: forecast.default_slope
	DefaultSlopePerHour = 0.5

	// DefaultRegressionLookback bounds the samples fed to the linear strategy.
	// Override via config: forecast.lookback
	DefaultRegressionLookback = 7 * 24 * time.Hour

	// DefaultWarningThreshold is the percent-full warning ETA target.
	DefaultWarningThreshold = 90.0

	// DefaultFullThreshold is the percent-full capacity ETA target.
	DefaultFullThreshold = 100.0

	// DefaultHorizonHours is the projection horizon when a request omits one.
	DefaultHorizonHours = 24

	// DefaultQueryHours is the series window when a request omits one.
	DefaultQueryHours = 24

	// MaxHorizonHours caps the number of projected hourly points.
	MaxHorizonHours = 24 * 30

	// MaxWindowHours caps series windows and pickup horizons.
	MaxWindowHours = 24 * 365 * 10
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir holds daily Parquet snapshots of the series.
	// Override via config: archive.dir
	DefaultArchiveDir = "data/archive"

	// DefaultArchiveInterval is how often today's snapshot is rewritten.
	// Override via config: archive.interval
	DefaultArchiveInterval = time.Hour

	// DefaultArchiveRetention is how long daily snapshots are kept.
	// Override via config: archive.retention
	DefaultArchiveRetention = 365 * 24 * time.Hour

	// DefaultDuckDBMemoryLimit caps the archive query engine.
	// Override via config: archive.memory_limit
	DefaultDuckDBMemoryLimit = "256MB"
)

// =============================================================================
// Broadcast Defaults
// =============================================================================

const (
	// DefaultSubscriberBuffer is the capacity of each subscriber channel.
	// Messages to a full subscriber are dropped and counted.
	DefaultSubscriberBuffer = 256

	// DefaultWebsocketWriteTimeout bounds a single websocket write.
	DefaultWebsocketWriteTimeout = 5 * time.Second
)

// =============================================================================
// MQTT / Kafka Defaults
// =============================================================================

const (
	// DefaultMQTTBroker is the broker the device bridge connects to.
	DefaultMQTTBroker = "tcp://localhost:1883"

	// DefaultMQTTClientID identifies the bridge at the broker.
	DefaultMQTTClientID = "binwatchd"

	// DefaultTelemetryTopic carries sensor payloads; "+" matches the bin id.
	DefaultTelemetryTopic = "bins/+/telemetry"

	// DefaultClassificationTopic carries vision payloads.
	DefaultClassificationTopic = "bins/+/classification"

	// DefaultCommandTopic is formatted with the bin id.
	DefaultCommandTopic = "bins/%s/command"

	// DefaultKafkaTopic receives every stored event.
	DefaultKafkaTopic = "binwatch.events"

	// DefaultPublishTimeout bounds a single MQTT or Kafka publish.
	DefaultPublishTimeout = 5 * time.Second
)
