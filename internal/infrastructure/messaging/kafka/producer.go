// Package kafka publishes reconciliation events to the message bus.  The
// only event today is list drift: what a new run added and removed relative
// to the previous snapshot.  Consumers downstream (alerting, audit) react
// without polling the snapshot store.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/openmedi/medirec/internal/engine/diffver"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
)

// DriftTopic is the default topic drift events land on.
const DriftTopic = "medirec.list.drift"

var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "producer closed")

// Config holds the producer settings.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Acks         string        `mapstructure:"acks"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes drift events.  It implements diffver.EventPublisher.
type Producer struct {
	writer Writer
	topic  string
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

// NewProducer builds a producer over a real kafka writer.
func NewProducer(cfg Config, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "kafka brokers required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DriftTopic
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.Acks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "one":
		requiredAcks = kafka.RequireOne
	default:
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: requiredAcks,
	}
	return newProducer(writer, cfg.Topic, log), nil
}

func newProducer(w Writer, topic string, log logging.Logger) *Producer {
	return &Producer{writer: w, topic: topic, logger: log.Named("kafka")}
}

// PublishDrift emits one drift event, keyed by run id so replays of the same
// run land on the same partition.
func (p *Producer) PublishDrift(ctx context.Context, event diffver.DriftEvent) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode drift event")
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: value,
		Time:  event.ComparedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodePublishFailed, "publish drift event")
	}

	p.sent.Add(1)
	p.logger.Debug("drift event published",
		logging.String("run_id", event.RunID),
		logging.Int("added", event.Added),
		logging.Int("removed", event.Removed))
	return nil
}

// Close closes the underlying writer.  Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int("events_sent", int(p.sent.Load())))
	return err
}
