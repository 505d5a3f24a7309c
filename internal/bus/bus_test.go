package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisherRecordsInOrder(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	for _, kind := range []string{"schema.create", "schema.update", "schema.delete"} {
		require.NoError(t, pub.Publish(ctx, Envelope{Kind: kind, Key: "id-1", Payload: json.RawMessage(`{}`)}))
	}

	got := pub.Published()
	require.Len(t, got, 3)
	assert.Equal(t, "schema.create", got[0].Kind)
	assert.Equal(t, "schema.update", got[1].Kind)
	assert.Equal(t, "schema.delete", got[2].Kind)
}

func TestMemoryPublisherPublishedIsCopy(t *testing.T) {
	pub := NewMemoryPublisher()
	require.NoError(t, pub.Publish(context.Background(), Envelope{Kind: "a", Key: "k"}))

	got := pub.Published()
	got[0].Kind = "mutated"
	assert.Equal(t, "a", pub.Published()[0].Kind)
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic", nil)
	require.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	require.Error(t, err)
}
