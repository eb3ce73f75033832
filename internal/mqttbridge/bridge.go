// Package mqttbridge connects binwatch to the device broker.
//
// The bridge subscribes to the telemetry and classification topics, feeds
// every message to the engine and publishes override commands back to the
// bins. A payload without bin id takes the id from the topic level matched
// by "+".
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/metrics"
	"github.com/xtxerr/binwatch/internal/normalize"
	"github.com/xtxerr/binwatch/internal/validation"
)

var log = logging.Component("mqtt")

// Config holds bridge configuration.
type Config struct {
	Broker              string
	ClientID            string
	Username            string
	Password            string
	TelemetryTopic      string
	ClassificationTopic string
	CommandTopic        string // formatted with the bin id
	QoS                 byte
	PublishTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Broker == "" {
		c.Broker = config.DefaultMQTTBroker
	}
	if c.ClientID == "" {
		c.ClientID = config.DefaultMQTTClientID
	}
	if c.TelemetryTopic == "" {
		c.TelemetryTopic = config.DefaultTelemetryTopic
	}
	if c.ClassificationTopic == "" {
		c.ClassificationTopic = config.DefaultClassificationTopic
	}
	if c.CommandTopic == "" {
		c.CommandTopic = config.DefaultCommandTopic
	}
	if c.QoS > 2 {
		c.QoS = 1
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = config.DefaultPublishTimeout
	}
}

// Ingester stores normalized payloads.
type Ingester interface {
	IngestSensor(source normalize.Source, raw map[string]any) (event.Entry, error)
	IngestClassification(source normalize.Source, raw map[string]any) (event.Entry, error)
}

// publisher is the part of mqtt.Client used for commands.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Stats holds bridge counters.
type Stats struct {
	Received  int64 `json:"received"`
	Malformed int64 `json:"malformed"`
	Commands  int64 `json:"commands"`
}

// Bridge is the MQTT host. It implements engine.CommandSink.
type Bridge struct {
	cfg     Config
	ingest  Ingester
	metrics *metrics.Metrics

	client    mqtt.Client
	publisher publisher

	received  atomic.Int64
	malformed atomic.Int64
	commands  atomic.Int64
}

// New creates a bridge. It does not connect until Run.
func New(cfg Config, ingest Ingester, m *metrics.Metrics) *Bridge {
	cfg.applyDefaults()
	b := &Bridge{cfg: cfg, ingest: ingest, metrics: m}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("broker connection lost", "broker", cfg.Broker, "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	b.client = mqtt.NewClient(opts)
	b.publisher = b.client
	return b
}

// Run connects and serves until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.Wrapf(err, "connect %s", b.cfg.Broker)
		}
	case <-ctx.Done():
		b.client.Disconnect(250)
		return nil
	}

	<-ctx.Done()
	b.client.Disconnect(250)
	log.Info("mqtt bridge stopped", "broker", b.cfg.Broker)
	return nil
}

// onConnect (re)subscribes after every connect.
func (b *Bridge) onConnect(c mqtt.Client) {
	log.Info("connected to broker", "broker", b.cfg.Broker)

	filters := map[string]byte{
		b.cfg.TelemetryTopic:      b.cfg.QoS,
		b.cfg.ClassificationTopic: b.cfg.QoS,
	}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		b.handle(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		log.Error("subscribe failed", "error", token.Error())
	}
}

// handle routes one message by the filter it matches.
func (b *Bridge) handle(topic string, payload []byte) {
	b.received.Add(1)

	var (
		filter string
		source normalize.Source
		fn     func(normalize.Source, map[string]any) (event.Entry, error)
	)
	switch {
	case MatchTopic(b.cfg.ClassificationTopic, topic):
		filter, source, fn = b.cfg.ClassificationTopic, normalize.SourceVision, b.ingest.IngestClassification
	case MatchTopic(b.cfg.TelemetryTopic, topic):
		filter, source, fn = b.cfg.TelemetryTopic, normalize.SourceDevice, b.ingest.IngestSensor
	default:
		log.Debug("message on unexpected topic", "topic", topic)
		return
	}

	raw := map[string]any{}
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		b.malformed.Add(1)
		log.Warn("dropping non-object payload", "topic", topic, "bytes", len(payload))
		return
	}
	if normalize.BinID(raw) == "" {
		if id := BinIDFromTopic(filter, topic); id != "" {
			raw["bin_id"] = id
		}
	}

	entry, err := fn(source, raw)
	b.metrics.Ingested(string(entry.Source), string(entry.Kind), entry.BinID, entry.PercentFull, err)
	if err != nil {
		log.Warn("reading not persisted", "topic", topic, "error", err)
	}
}

// SendCommand publishes cmd to the bin's command topic.
func (b *Bridge) SendCommand(ctx context.Context, cmd engine.Command) error {
	if err := validation.ValidateBinID(cmd.BinID); err != nil {
		return errors.NewInvalidValue("bin_id", cmd.BinID, err.Error())
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	topic := fmt.Sprintf(b.cfg.CommandTopic, cmd.BinID)
	token := b.publisher.Publish(topic, b.cfg.QoS, false, payload)

	timer := time.NewTimer(b.cfg.PublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return errors.Wrapf(errors.ErrPublish, "publish %s: timeout", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}

	b.commands.Add(1)
	log.Debug("command published", "topic", topic, "action", cmd.Action, "id", cmd.ID)
	return nil
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Malformed: b.malformed.Load(),
		Commands:  b.commands.Load(),
	}
}

// =============================================================================
// Topics
// =============================================================================

// MatchTopic reports whether topic matches the MQTT filter.
func MatchTopic(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// BinIDFromTopic returns the topic level matched by the first "+" of filter,
// or "" when the topic does not match.
func BinIDFromTopic(filter, topic string) string {
	if !MatchTopic(filter, topic) {
		return ""
	}
	t := strings.Split(topic, "/")
	for i, level := range strings.Split(filter, "/") {
		if level == "+" {
			return t[i]
		}
	}
	return ""
}
