package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bus := New(client, "")
	require.Equal(t, DefaultChannel, bus.Channel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, func(_ context.Context, payload []byte) {
			received <- payload
		})
	}()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishJSON(ctx, map[string]string{"type": "inventory.received"}))

	select {
	case payload := <-received:
		var msg map[string]string
		require.NoError(t, json.Unmarshal(payload, &msg))
		require.Equal(t, "inventory.received", msg["type"])
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestPublishJSONRejectsUnencodable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	err := New(client, "x").PublishJSON(context.Background(), make(chan int))
	require.Error(t, err)

	var nilBus *RedisBus
	require.Error(t, nilBus.PublishJSON(context.Background(), 1))
}
