package liveevents

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelayMirrorsEventsAcrossInstances(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	newInstance := func() (*Hub, *Relay) {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		hub := NewHub(10, 8)
		relay := NewRelay(client, hub, "", zap.NewNop())
		require.NoError(t, relay.Start(ctx))
		t.Cleanup(func() { _ = relay.Stop(context.Background()) })
		return hub, relay
	}

	hubA, relayA := newInstance()
	hubB, _ := newInstance()
	assert.NotEqual(t, relayA.InstanceID(), "")

	subA, _, _, err := hubA.Subscribe("merchant:100", 0)
	require.NoError(t, err)
	defer subA.Close()
	subB, _, _, err := hubB.Subscribe("merchant:100", 0)
	require.NoError(t, err)
	defer subB.Close()

	publisher := NewPublisher(hubA, relayA)
	require.NoError(t, publisher.Publish(ctx, event(7, 1, 0, "NEW")))

	select {
	case msg := <-subB.Messages():
		assert.Equal(t, "merchant:100", msg.Stream)
		assert.Equal(t, int64(1), msg.Event.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not received")
	}

	msgs := drain(subA)
	require.Len(t, msgs, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, drain(subA), "own relay echo is ignored")
}

func TestPublisherWithoutRelay(t *testing.T) {
	hub := NewHub(10, 4)
	sub, _, _, err := hub.Subscribe("order:7", 0)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, NewPublisher(hub, nil).Publish(context.Background(), event(7, 1, 0, "NEW")))
	assert.Len(t, drain(sub), 1)
}
