// Package kafkasink publishes every broadcast message to a Kafka topic.
//
// Messages are JSON-encoded event.Message values keyed by bin id, so all
// events of one bin land on the same partition in order. Removals carry no
// bin and are keyed by the removed entry id.
package kafkasink

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/metrics"
)

var log = logging.Component("kafka")

// Config holds sink configuration.
type Config struct {
	Brokers        []string
	Topic          string
	BatchSize      int
	PublishTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stats holds sink counters.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Sink drains a hub subscription into Kafka.
type Sink struct {
	cfg     Config
	hub     *broadcast.Hub
	writer  messageWriter
	metrics *metrics.Metrics

	published atomic.Int64
	failed    atomic.Int64
}

// New creates a sink writing to cfg.Brokers.
func New(cfg Config, hub *broadcast.Hub, m *metrics.Metrics) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.NewMissingField("kafka.brokers")
	}
	if cfg.Topic == "" {
		cfg.Topic = config.DefaultKafkaTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newSink(cfg, hub, w, m), nil
}

func newSink(cfg Config, hub *broadcast.Hub, w messageWriter, m *metrics.Metrics) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = config.DefaultPublishTimeout
	}
	return &Sink{cfg: cfg, hub: hub, writer: w, metrics: m}
}

// Run publishes until ctx is done. Messages already queued when ctx ends
// are dropped.
func (s *Sink) Run(ctx context.Context) error {
	sub := s.hub.Subscribe("kafka")
	defer sub.Close()
	defer s.writer.Close()

	log.Info("kafka sink started", "topic", s.cfg.Topic, "brokers", s.cfg.Brokers)

	batch := make([]kafka.Message, 0, s.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			batch = append(batch[:0], encode(msg)...)
		drain:
			for len(batch) < s.cfg.BatchSize {
				select {
				case more, ok := <-sub.C():
					if !ok {
						break drain
					}
					batch = append(batch, encode(more)...)
				default:
					break drain
				}
			}
			s.write(ctx, batch)
		}
	}
}

func (s *Sink) write(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	err := s.writer.WriteMessages(wctx, batch...)
	for range batch {
		s.metrics.Published("kafka", err)
	}
	if err != nil {
		s.failed.Add(int64(len(batch)))
		log.Warn("kafka publish failed", "messages", len(batch), "error", err)
		return
	}
	s.published.Add(int64(len(batch)))
}

// encode returns zero or one Kafka message for msg.
func encode(msg event.Message) []kafka.Message {
	value, err := json.Marshal(msg)
	if err != nil {
		log.Error("encode message", "error", err)
		return nil
	}
	return []kafka.Message{{Key: []byte(key(msg)), Value: value}}
}

func key(msg event.Message) string {
	if msg.Entry != nil && msg.Entry.BinID != "" {
		return msg.Entry.BinID
	}
	if msg.Entry != nil {
		return msg.Entry.ID
	}
	return msg.ID
}

// Stats returns sink counters.
func (s *Sink) Stats() Stats {
	return Stats{Published: s.published.Load(), Failed: s.failed.Load()}
}
