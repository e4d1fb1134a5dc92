package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultQueueSize = 1024
	maxBatch         = 100
	drainTimeout     = 5 * time.Second
)

// MessageWriter is the part of *kafka.Writer the dispatcher uses. Tests
// substitute an in-memory fake.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds the producer settings.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafkaWriter builds a *kafka.Writer that hashes the message key, so
// every event from one actor lands on the same partition in order.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Dispatcher is a Publisher backed by a queue and a MessageWriter.
type Dispatcher struct {
	writer MessageWriter
	queue  chan Event
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. queueSize <= 0 uses the default.
// Nothing is written until Run is called.
func NewDispatcher(writer MessageWriter, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		writer: writer,
		queue:  make(chan Event, queueSize),
		logger: logger,
	}
}

// Publish enqueues ev without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(_ context.Context, ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("activity queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("actor", ev.ActorID),
		)
	}
}

// Run ships queued events until ctx is cancelled, then flushes what is
// still queued (bounded by drainTimeout) and closes the writer.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case ev := <-d.queue:
			d.write(ctx, d.batch(ev))
		}
	}
}

// batch collects ev plus whatever else is already queued, up to maxBatch.
func (d *Dispatcher) batch(first Event) []Event {
	events := []Event{first}
	for len(events) < maxBatch {
		select {
		case ev := <-d.queue:
			events = append(events, ev)
		default:
			return events
		}
	}
	return events
}

func (d *Dispatcher) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-d.queue:
			d.write(ctx, d.batch(ev))
		default:
			if err := d.writer.Close(); err != nil {
				return fmt.Errorf("activity: closing writer: %w", err)
			}
			return nil
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, events []Event) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			d.logger.Error("encoding activity event", slog.String("error", err.Error()))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.ActorID),
			Value: value,
			Time:  ev.At,
		})
	}
	if len(msgs) == 0 {
		return
	}

	if err := d.writer.WriteMessages(ctx, msgs...); err != nil {
		d.logger.Error("publishing activity events",
			slog.Int("count", len(msgs)),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Debug("published activity events", slog.Int("count", len(msgs)))
}
