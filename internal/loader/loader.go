// Package loader handles configuration file loading, validation, and
// environment overrides.
//
// LOCATION: internal/loader/loader.go
//
// Precedence, lowest first: defaults, config.yaml (with ${VAR} expansion),
// BINWATCH_* environment variables (a .env file is read first when present),
// command line flags (applied by main).

package loader

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/storage/parquet"
	"github.com/xtxerr/binwatch/internal/validation"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BINWATCH_"

// =============================================================================
// Load
// =============================================================================

// Load reads configuration from path. An empty path uses defaults. Env
// overrides are applied on top of the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// =============================================================================
// Environment overrides
// =============================================================================

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies BINWATCH_* overrides to cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	errs := errors.NewValidationErrors()

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs.Add(errors.NewInvalidValue(EnvPrefix+key, v, "not a boolean"))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs.Add(errors.NewInvalidValue(EnvPrefix+key, v, "not an integer"))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs.Add(errors.NewInvalidValue(EnvPrefix+key, v, "not a number"))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := ParseDuration(v)
			if err != nil {
				errs.Add(errors.NewInvalidValue(EnvPrefix+key, v, "not a duration"))
				return
			}
			*dst = Duration(d)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = splitList(v)
		}
	}

	str("LISTEN", &cfg.Listen)
	list("ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_JSON", &cfg.Log.JSON)

	float("BIN_HEIGHT_CM", &cfg.Bin.HeightCm)
	str("DEFAULT_BIN_ID", &cfg.Bin.DefaultID)
	integer("HISTORY_CAPACITY", &cfg.History.Capacity)

	dur("SERIES_RETENTION", &cfg.Series.Retention)
	str("READING_LOG", &cfg.Series.LogPath)
	boolean("READING_LOG_SYNC", &cfg.Series.Sync)

	boolean("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	str("ARCHIVE_DIR", &cfg.Archive.Dir)
	dur("ARCHIVE_INTERVAL", &cfg.Archive.Interval)
	dur("ARCHIVE_RETENTION", &cfg.Archive.Retention)

	boolean("TAP_ENABLED", &cfg.Tap.Enabled)
	str("TAP_LISTEN", &cfg.Tap.Listen)

	boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)

	boolean("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)

	return errs.Err()
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.AddField("log.level", fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}

	// Bins
	if cfg.Bin.HeightCm <= 0 {
		errs.AddField("bin.height_cm", "must be positive")
	}
	if err := validation.ValidateBinID(cfg.Bin.DefaultID); err != nil {
		errs.AddField("bin.default_id", err.Error())
	}
	for id, h := range cfg.Bin.Heights {
		if err := validation.ValidateBinID(id); err != nil {
			errs.AddField(fmt.Sprintf("bin.heights.%s", id), err.Error())
		}
		if h <= 0 {
			errs.AddField(fmt.Sprintf("bin.heights.%s", id), "must be positive")
		}
	}

	// Stores
	if cfg.History.Capacity <= 0 {
		errs.AddField("history.capacity", "must be positive")
	}
	if cfg.Series.Retention.Duration() <= 0 {
		errs.AddField("series.retention", "must be positive")
	}

	// Forecast
	if cfg.Forecast.MovingAverageWindow <= 0 {
		errs.AddField("forecast.ma_window", "must be positive")
	}
	if cfg.Forecast.WarningThreshold <= 0 || cfg.Forecast.WarningThreshold > cfg.Forecast.FullThreshold {
		errs.AddField("forecast.warning_threshold", "must be in (0, full_threshold]")
	}
	if cfg.Forecast.FullThreshold <= 0 || cfg.Forecast.FullThreshold > 100 {
		errs.AddField("forecast.full_threshold", "must be in (0, 100]")
	}

	// Archive
	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		if cfg.Archive.Interval.Duration() <= 0 {
			errs.AddField("archive.interval", "must be positive")
		}
		if _, ok := parquet.LookupCompressionType(cfg.Archive.Compression); !ok {
			errs.AddField("archive.compression", fmt.Sprintf("unknown codec %q", cfg.Archive.Compression))
		}
	}

	// Hosts
	if cfg.Tap.Enabled && cfg.Tap.Listen == "" {
		errs.AddField("tap.listen", "cannot be empty when enabled")
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			errs.AddField("mqtt.broker", "cannot be empty when enabled")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			errs.AddField("mqtt.qos", "must be 0, 1 or 2")
		}
		if strings.Count(cfg.MQTT.CommandTopic, "%s") != 1 {
			errs.AddField("mqtt.command_topic", "must contain exactly one %s for the bin id")
		}
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		errs.AddMissing("kafka.brokers")
	}

	return errs.Err()
}
