package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// defaultBatchTimeout replaces kafka-go's one second flush interval.
const defaultBatchTimeout = 50 * time.Millisecond

// KafkaProducer publishes session events, keyed by tenant and user, with one
// lazily created writer per topic (session_events today). Writers hash the key
// so every event of one athlete lands on the same partition in order.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	mu           sync.Mutex
	writers      map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. A non-positive batchTimeout uses
// the 50ms default.
func NewKafkaProducer(brokers []string, batchTimeout time.Duration) *KafkaProducer {
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}
	return &KafkaProducer{
		brokers:      brokers,
		batchTimeout: batchTimeout,
		writers:      make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to topic, creating its writer on first use.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: p.batchTimeout,
	}
	p.writers[topic] = writer
	return writer
}

// Close flushes and releases every writer, reporting each failure.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
