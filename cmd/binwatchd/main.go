// binwatchd is the smart-bin telemetry daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/httpapi"
	"github.com/xtxerr/binwatch/internal/kafkasink"
	"github.com/xtxerr/binwatch/internal/loader"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/metrics"
	"github.com/xtxerr/binwatch/internal/mqttbridge"
	"github.com/xtxerr/binwatch/internal/server"
	"github.com/xtxerr/binwatch/internal/storage/archive"
	"github.com/xtxerr/binwatch/internal/storage/parquet"
	"github.com/xtxerr/binwatch/internal/storage/query"
	"github.com/xtxerr/binwatch/internal/storage/readinglog"
	"github.com/xtxerr/binwatch/internal/storage/retention"
	"github.com/xtxerr/binwatch/internal/storage/series"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "binwatchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	cfgPath := flag.String("config", "", "config file path (optional)")
	envFile := flag.String("env", ".env", "dotenv file loaded before BINWATCH_* overrides")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	readingLog := flag.String("reading-log", "", "reading log path (overrides config)")
	archiveDir := flag.String("archive-dir", "", "archive directory (overrides config)")
	tapListen := flag.String("tap", "", "enable the event tap on this address")
	mqttBroker := flag.String("mqtt", "", "enable the MQTT bridge with this broker URL")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return nil
	}

	// Load config
	if err := loader.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *readingLog != "" {
		cfg.Series.LogPath = *readingLog
	}
	if *archiveDir != "" {
		cfg.Archive.Dir = *archiveDir
	}
	if *tapListen != "" {
		cfg.Tap.Enabled = true
		cfg.Tap.Listen = *tapListen
	}
	if *mqttBroker != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = *mqttBroker
	}

	if err := loader.Validate(cfg); err != nil {
		return err
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("binwatchd starting", "version", Version)

	m := metrics.New(metrics.Options{KnownBins: cfg.Bin.KnownIDs()})

	// =========================================================================
	// Stores
	// =========================================================================

	var persister series.Persister
	var logWriter *readinglog.Writer
	if cfg.Series.LogPath != "" {
		logWriter, err = readinglog.Open(cfg.Series.LogPath, readinglog.Options{Sync: cfg.Series.Sync})
		if err != nil {
			return err
		}
		defer logWriter.Close()
		persister = logWriter
	} else {
		log.Warn("reading log disabled, readings are kept in memory only")
	}

	points := series.New(persister, series.Options{Retention: cfg.Series.Retention.Duration()})
	if cfg.Series.LogPath != "" {
		if _, err := points.Replay(cfg.Series.LogPath); err != nil {
			return err
		}
	}

	hub := broadcast.NewHub(cfg.Broadcast.Buffer)
	hub.SetOnDrop(func(string) { m.Dropped() })
	defer hub.Close()

	events := event.NewStore(cfg.History.Capacity, hub)

	// =========================================================================
	// Engine
	// =========================================================================

	// The bridge needs the engine and the engine sends commands through the
	// bridge, so the sink resolves the bridge lazily.
	var bridge *mqttbridge.Bridge
	var commands engine.CommandSink
	if cfg.MQTT.Enabled {
		commands = engine.CommandSinkFunc(func(ctx context.Context, cmd engine.Command) error {
			return bridge.SendCommand(ctx, cmd)
		})
	}

	eng := engine.New(events, points, engine.Options{
		BinHeightCm:          cfg.Bin.HeightCm,
		Heights:              cfg.Bin.Heights,
		DefaultBinID:         cfg.Bin.DefaultID,
		MovingAverageWindow:  cfg.Forecast.MovingAverageWindow,
		MovingAverageHistory: cfg.Forecast.MovingAverageHistory.Duration(),
		DefaultSlopePerHour:  cfg.Forecast.DefaultSlopePerHour,
		RegressionLookback:   cfg.Forecast.Lookback.Duration(),
		WarningThreshold:     cfg.Forecast.WarningThreshold,
		FullThreshold:        cfg.Forecast.FullThreshold,
		Commands:             commands,
	})

	if cfg.MQTT.Enabled {
		bridge = mqttbridge.New(mqttbridge.Config{
			Broker:              cfg.MQTT.Broker,
			ClientID:            cfg.MQTT.ClientID,
			Username:            cfg.MQTT.Username,
			Password:            cfg.MQTT.Password,
			TelemetryTopic:      cfg.MQTT.TelemetryTopic,
			ClassificationTopic: cfg.MQTT.ClassificationTopic,
			CommandTopic:        cfg.MQTT.CommandTopic,
			QoS:                 byte(cfg.MQTT.QoS),
		}, eng, m)
	}

	// =========================================================================
	// Hosts
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	status := map[string]func() any{}
	if logWriter != nil {
		status["reading_log"] = func() any { return logWriter.Stats() }
	}

	var archiveQuery *query.Service
	if cfg.Archive.Enabled {
		ret := retention.New(retention.Options{
			Dir:       cfg.Archive.Dir,
			Retention: cfg.Archive.Retention.Duration(),
		})
		arch := archive.New(points, ret, archive.Options{
			Dir:         cfg.Archive.Dir,
			Interval:    cfg.Archive.Interval.Duration(),
			Horizon:     cfg.Series.Retention.Duration(),
			Compression: parquet.ParseCompressionType(cfg.Archive.Compression),
			OnSnapshot:  func(_ archive.Result, err error) { m.ArchiveRun(err) },
		})
		g.Go(func() error { return arch.Run(ctx) })
		status["archive"] = func() any { return arch.Stats() }
		status["retention"] = func() any { return ret.Stats() }
		status["disk"] = func() any { return ret.GetDiskUsage() }

		archiveQuery, err = query.New(query.Options{
			Dir:         cfg.Archive.Dir,
			MemoryLimit: cfg.Archive.MemoryLimit.DuckDB(),
			BinHeightCm: cfg.Bin.HeightCm,
			Heights:     cfg.Bin.Heights,
		})
		if err != nil {
			return err
		}
		defer archiveQuery.Close()
		log.Info("archive enabled", "dir", cfg.Archive.Dir, "interval", cfg.Archive.Interval.Duration())
	}

	if bridge != nil {
		g.Go(func() error { return bridge.Run(ctx) })
		status["mqtt"] = func() any { return bridge.Stats() }
	}

	if cfg.Kafka.Enabled {
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers:   cfg.Kafka.Brokers,
			Topic:     cfg.Kafka.Topic,
			BatchSize: cfg.Kafka.BatchSize,
		}, hub, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return sink.Run(ctx) })
		status["kafka"] = func() any { return sink.Stats() }
	}

	api := httpapi.New(httpapi.Config{
		Listen:          cfg.Listen,
		AllowedOrigins:  cfg.AllowedOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration(),
	}, httpapi.Deps{
		Engine:  eng,
		Hub:     hub,
		Query:   archiveQuery,
		Metrics: m,
		Status:  status,
	})
	g.Go(func() error { return api.Run(ctx) })

	if cfg.Tap.Enabled {
		tap := server.New(&server.Config{Hub: hub, Listen: cfg.Tap.Listen})
		g.Go(func() error { return tap.Run(ctx) })
	}

	log.Info("binwatchd ready",
		"listen", cfg.Listen,
		"bins", len(points.Bins()),
		"tap", cfg.Tap.Enabled,
		"mqtt", cfg.MQTT.Enabled,
		"kafka", cfg.Kafka.Enabled)

	err = g.Wait()
	log.Info("binwatchd stopped", "error", err)
	return err
}
