package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(10, nil)
	assert.NoError(t, err)
	assert.True(t, hub.IsOnline(10))

	hub.UnregisterClient(client)
	assert.False(t, hub.IsOnline(10))
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(5, nil)
		require.NoError(t, err)
	}

	_, err := hub.Register(5, nil)
	assert.Error(t, err)

	// Other users are unaffected by one user's limit.
	_, err = hub.Register(6, nil)
	assert.NoError(t, err)
}

func TestHub_DeliverFiltersBySubscription(t *testing.T) {
	hub := NewHub()

	subscribed, err := hub.Register(1, nil)
	require.NoError(t, err)
	subscribed.Subscribe(TopicMessageSent)

	unsubscribed, err := hub.Register(2, nil)
	require.NoError(t, err)

	offTopic, err := hub.Register(1, nil)
	require.NoError(t, err)
	offTopic.Subscribe(TopicChatDeleted)

	hub.Deliver(Envelope{
		Topic:      TopicMessageSent,
		Recipients: []uint{1, 2},
		Payload:    json.RawMessage(`{"chatId":7}`),
	})

	select {
	case frame := <-subscribed.Send:
		var decoded eventFrame
		require.NoError(t, json.Unmarshal(frame, &decoded))
		assert.Equal(t, "event", decoded.Type)
		assert.Equal(t, TopicMessageSent, decoded.Topic)
		assert.JSONEq(t, `{"chatId":7}`, string(decoded.Payload))
	default:
		t.Fatal("subscribed client received nothing")
	}

	assert.Empty(t, unsubscribed.Send)
	assert.Empty(t, offTopic.Send)
}

func TestHub_DeliverSkipsNonRecipients(t *testing.T) {
	hub := NewHub()

	bystander, err := hub.Register(3, nil)
	require.NoError(t, err)
	bystander.Subscribe(TopicChatUpdated)

	hub.Deliver(Envelope{
		Topic:      TopicChatUpdated,
		Recipients: []uint{4},
		Payload:    json.RawMessage(`{"id":1}`),
	})

	assert.Empty(t, bystander.Send)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(8, nil)
	require.NoError(t, err)
	client.Subscribe(TopicChatLeft)
	client.Unsubscribe(TopicChatLeft)

	hub.Deliver(Envelope{
		Topic:      TopicChatLeft,
		Recipients: []uint{8},
		Payload:    json.RawMessage(`{"chatId":2,"memberId":8}`),
	})

	assert.Empty(t, client.Send)
}

func TestHub_WiringDeliversPublishedEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub()
	bus := NewBus(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, bus))

	client, err := hub.Register(11, nil)
	require.NoError(t, err)
	client.Subscribe(TopicChatCreated)

	assert.Eventually(t, func() bool {
		_ = bus.Publish(context.Background(), TopicChatCreated, []uint{11}, map[string]any{"id": 99})
		select {
		case frame := <-client.Send:
			var decoded eventFrame
			require.NoError(t, json.Unmarshal(frame, &decoded))
			return decoded.Topic == TopicChatCreated
		default:
			return false
		}
	}, testEventuallyTimeout, testPollInterval)
}
