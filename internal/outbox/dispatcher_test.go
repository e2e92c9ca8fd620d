package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"example.com/swimrun/internal/events"
)

type stubStore struct {
	pending   []Message
	published []int64
	dlq       []string
}

func (s *stubStore) Claim(_ context.Context, limit int) ([]Message, error) {
	if len(s.pending) < limit {
		limit = len(s.pending)
	}
	batch := s.pending[:limit]
	s.pending = s.pending[limit:]
	return batch, nil
}

func (s *stubStore) MarkPublished(_ context.Context, messages []Message) error {
	for _, m := range messages {
		s.published = append(s.published, m.EventID)
	}
	return nil
}

func (s *stubStore) MoveToDLQ(_ context.Context, msg Message, reason string) error {
	s.dlq = append(s.dlq, reason)
	return nil
}

type stubWriter struct {
	mu      sync.Mutex
	written map[string][]kafka.Message
	err     error
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.written == nil {
		w.written = make(map[string][]kafka.Message)
	}
	w.written[topic] = append(w.written[topic], msgs...)
	return nil
}

type stubRegistry struct {
	calls int
}

func (r *stubRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return 42, nil
}

func loggedMessage(id int64, tenant string) Message {
	payload, _ := json.Marshal(events.SessionLogged{SessionID: "s", TenantID: tenant, UserID: "u", Date: "2024-06-10", Type: "swim"})
	return Message{
		EventID:       id,
		TenantID:      tenant,
		AggregateType: "session",
		AggregateID:   "s",
		EventType:     events.TypeSessionLogged,
		Topic:         "session_events",
		SchemaSubject: "session_events-value",
		PartitionKey:  tenant + ":u",
		Payload:       payload,
	}
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(7, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(frame[1:5]))
	require.JSONEq(t, `{"a":1}`, string(frame[5:]))
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	store := &stubStore{pending: []Message{loggedMessage(1, "t1"), loggedMessage(2, "t2")}}
	writer := &stubWriter{}
	registry := &stubRegistry{}
	d := NewDispatcher(store, writer, registry, 0, 10, WithDispatcherLogger(quietLogger()))
	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeSamples := histogramSampleCount(t)

	require.NoError(t, d.processBatch(context.Background()))
	require.Equal(t, []int64{1, 2}, store.published)
	require.InDelta(t, beforeDelivered+2, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Equal(t, beforeSamples+1, histogramSampleCount(t))
	require.Empty(t, store.dlq)
	require.Equal(t, 1, registry.calls, "schema IDs are cached per subject")

	written := writer.written["session_events"]
	require.Len(t, written, 2)
	require.Equal(t, "t1:u", string(written[0].Key))
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(written[0].Value[1:5]))
	require.Equal(t, "event_type", written[0].Headers[0].Key)
	require.Equal(t, events.TypeSessionLogged, string(written[0].Headers[0].Value))

	require.NoError(t, d.processBatch(context.Background()))
	require.Len(t, store.published, 2)
}

func TestProcessBatchRoutesFailuresToDLQ(t *testing.T) {
	store := &stubStore{pending: []Message{loggedMessage(3, "t1")}}
	writer := &stubWriter{err: errors.New("broker unavailable")}
	d := NewDispatcher(store, writer, &stubRegistry{}, 0, 10, WithDispatcherLogger(quietLogger()))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("session_events"))

	require.NoError(t, d.processBatch(context.Background()))
	require.Len(t, store.dlq, 1)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("session_events")), 0.0001)
	require.Contains(t, store.dlq[0], "broker unavailable")
	require.Contains(t, store.dlq[0], "topic=session_events")
	require.Equal(t, []int64{3}, store.published)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	msg := loggedMessage(4, "t1")
	msg.EventType = "session.deleted"
	d := NewDispatcher(&stubStore{}, &stubWriter{}, &stubRegistry{}, 0, 10)

	err := d.deliver(context.Background(), []Message{msg})
	require.ErrorContains(t, err, "session.deleted")
}

func TestSchemaRegistryEnsureSchema(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/known-value/versions/latest":
			_, _ = w.Write([]byte(`{"id": 3}`))
		case r.Method == http.MethodGet:
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/new-value/versions":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			registered = body["schemaType"]
			_, _ = w.Write([]byte(`{"id": 9}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")

	id, err := client.EnsureSchema(context.Background(), "known-value", sessionLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 3, id)

	id, err = client.EnsureSchema(context.Background(), "new-value", sessionLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 9, id)
	require.Equal(t, "JSON", registered)

	_, err = client.EnsureSchema(context.Background(), "broken-value", sessionLoggedSchema)
	require.ErrorContains(t, err, "boom")
}

func TestSessionLoggedSchemaIsValidJSON(t *testing.T) {
	for eventType, schema := range schemaCatalog {
		require.True(t, json.Valid([]byte(schema)), eventType)
	}
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, batchDuration.Write(m))
	return m.GetHistogram().GetSampleCount()
}
