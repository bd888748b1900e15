package docstore

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherCoalescesPendingMessages(testContext *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "hotels")
	defer cleanup()

	dispatcher.Publish(ChangeMessage{Collection: "hotels", Origin: "first"})
	dispatcher.Publish(ChangeMessage{Collection: "hotels", Origin: "second"})
	dispatcher.Publish(ChangeMessage{Collection: "other"})

	select {
	case message := <-stream:
		if message.Origin != "first" {
			testContext.Fatalf("expected first pending message, got %q", message.Origin)
		}
	case <-time.After(time.Second):
		testContext.Fatalf("expected a pending message")
	}
	select {
	case message := <-stream:
		testContext.Fatalf("expected coalesced stream to be empty, got %+v", message)
	default:
	}
}

func TestDispatcherUnsubscribesOnCancel(testContext *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "hotels")
	if count := dispatcher.SubscriberCount("hotels"); count != 1 {
		testContext.Fatalf("expected 1 subscriber, got %d", count)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("hotels") != 0 {
		if time.Now().After(deadline) {
			testContext.Fatalf("expected subscriber removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cleanup()

	stream, _ := dispatcher.Subscribe(context.Background(), "")
	if _, ok := <-stream; ok {
		testContext.Fatalf("expected closed stream for empty collection")
	}
}
