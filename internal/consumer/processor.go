// Package consumer reads session imports from Kafka and feeds them to the session service.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	TenantID  string
	// SchemaID is zero for records that were published without Schema Registry framing.
	SchemaID int
	Payload  json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger log.FieldLogger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) {
		p.backoff = d
	}
}

// Processor pulls messages from Kafka, decodes them and dispatches them to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  log.FieldLogger
	backoff time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.WithField("component", "consumer"),
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled. Messages are committed only
// after the handler succeeds, except for malformed records which are committed
// so they cannot block the partition.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			p.logger.WithError(err).Warn("fetch failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff):
			}
			continue
		}

		fields := log.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}
		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.WithFields(fields).WithError(decodeErr).Warn("dropping undecodable message")
			recordDecodeError(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.WithError(commitErr).Error("commit after decode failure")
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.WithFields(fields).WithFields(log.Fields{
				"event_type": event.EventType,
				"tenant_id":  event.TenantID,
			}).WithError(handleErr).Error("handler failed")
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.WithFields(fields).WithError(commitErr).Error("commit failed")
		} else {
			recordProcessed(event)
		}
	}
}

// decodeMessage accepts both Schema Registry framed values and bare JSON documents.
func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok || len(eventType) == 0 {
		return Message{}, errors.New("missing event_type header")
	}
	tenantID, _ := headerValue(msg, "tenant_id")

	var (
		schemaID int
		body     = msg.Value
	)
	if len(body) >= 5 && body[0] == 0 {
		schemaID = int(binary.BigEndian.Uint32(body[1:5]))
		body = body[5:]
	}
	if !json.Valid(body) {
		return Message{}, fmt.Errorf("payload is not valid JSON (%d bytes)", len(msg.Value))
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: string(eventType),
		TenantID:  string(tenantID),
		SchemaID:  schemaID,
		Payload:   json.RawMessage(append([]byte(nil), body...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
