package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRelay(t *testing.T, origin string) (*miniredis.Miniredis, *RedisRelay) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	relay, err := NewRedisRelay(RedisRelayConfig{Client: client, Origin: origin})
	require.NoError(t, err)
	return mr, relay
}

func TestNewRedisRelay_RequiresClient(t *testing.T) {
	_, err := NewRedisRelay(RedisRelayConfig{})
	require.Error(t, err)
}

func TestRedisRelay_ForwardsForeignMessages(t *testing.T) {
	mr, receiver := setupTestRelay(t, "server")
	senderClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = senderClient.Close() })
	sender, err := NewRedisRelay(RedisRelayConfig{Client: senderClient, Origin: "seed-cli"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := NewDispatcher()
	stream, cleanup := dispatcher.Subscribe(ctx, "hotels")
	defer cleanup()

	stop, err := receiver.Forward(ctx, dispatcher)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, sender.Publish(ctx, ChangeMessage{Collection: "hotels", Origin: "seed-cli", Timestamp: time.Unix(1700000000, 0).UTC()}))

	select {
	case message := <-stream:
		assert.Equal(t, "hotels", message.Collection)
		assert.Equal(t, "seed-cli", message.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}

func TestRedisRelay_SkipsOwnOrigin(t *testing.T) {
	_, relay := setupTestRelay(t, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := NewDispatcher()
	stream, cleanup := dispatcher.Subscribe(ctx, "hotels")
	defer cleanup()

	stop, err := relay.Forward(ctx, dispatcher)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, relay.Publish(ctx, ChangeMessage{Collection: "hotels", Origin: "server"}))

	select {
	case message := <-stream:
		t.Fatalf("expected own message to be skipped, got %+v", message)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStore_PublishesThroughRelay(t *testing.T) {
	mr, relay := setupTestRelay(t, "writer")
	listener := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = listener.Close() })

	ctx := context.Background()
	pubsub := listener.Subscribe(ctx, DefaultChannelPrefix+"hotels")
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	db := openTestDatabase(t)
	store, err := NewStore(Config{Database: db, IDProvider: NewUUIDProvider(), Relay: relay, Origin: "writer"})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "hotels", "Azalea", map[string]any{"name": "Azalea"}))

	select {
	case received := <-pubsub.Channel():
		assert.Contains(t, received.Payload, `"origin":"writer"`)
		assert.Contains(t, received.Payload, `"collection":"hotels"`)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published change")
	}
}
