package outbox

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerReusesWritersPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, 0)

	first := p.writerForTopic("session_events")
	require.Same(t, first, p.writerForTopic("session_events"))
	require.NotSame(t, first, p.writerForTopic("other"))
	require.Equal(t, kafka.RequireAll, first.RequiredAcks)
	require.Equal(t, defaultBatchTimeout, first.BatchTimeout)
	require.IsType(t, &kafka.Hash{}, first.Balancer)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

func TestKafkaProducerUsesConfiguredBatchTimeout(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, 200*time.Millisecond)
	require.Equal(t, 200*time.Millisecond, p.writerForTopic("session_events").BatchTimeout)
	require.NoError(t, p.Close())
}
