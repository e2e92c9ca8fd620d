// Package outbox delivers events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// MessageWriter publishes messages to a topic.
type MessageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// SchemaRegistrar resolves the registry ID of a schema subject.
type SchemaRegistrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

// Store claims pending outbox rows and records their outcome.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, messages []Message) error
	MoveToDLQ(ctx context.Context, msg Message, reason string) error
}

// Message represents a row fetched from the outbox.
type Message struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	ReplayCount   int // Times the event was requeued from the dead-letter table.
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger.
func WithDispatcherLogger(logger log.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher drains the outbox and delivers events to Kafka framed with Schema Registry IDs.
type Dispatcher struct {
	store            Store
	producer         MessageWriter
	registry         SchemaRegistrar
	logger           log.FieldLogger
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, producer MessageWriter, registry SchemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:            store,
		producer:         producer,
		registry:         registry,
		logger:           log.StandardLogger(),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Error("outbox dispatch failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim outbox batch: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.WithError(err).WithField("batch_size", len(messages)).Warn("outbox delivery failed, moving batch to dead-letter table")
		failedCounter.Add(float64(len(messages)))
		for _, msg := range messages {
			if dlqErr := d.store.MoveToDLQ(ctx, msg, fmt.Sprintf("%s (topic=%s)", err, msg.Topic)); dlqErr != nil {
				return fmt.Errorf("move event %d to dlq: %w", msg.EventID, dlqErr)
			}
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
		return d.store.MarkPublished(ctx, messages)
	}

	deliveredCounter.Add(float64(len(messages)))
	return d.store.MarkPublished(ctx, messages)
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	order := make([]string, 0)

	for _, msg := range messages {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "tenant_id", Value: []byte(msg.TenantID)},
			},
			Time: time.Now().UTC(),
		}
		if _, seen := batches[msg.Topic]; !seen {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return fmt.Errorf("write to %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + schema
	if id, found := d.schemaIDCache.Load(cacheKey); found {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", msg.SchemaSubject, err)
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// encodeWireFormat applies Confluent framing: a zero magic byte and the big-endian schema ID ahead of the payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
