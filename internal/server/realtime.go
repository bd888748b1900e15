package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
)

const (
	RealtimeEventSnapshot  = "hotels-snapshot"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "roomboard-backend"
)

type RealtimeMessage struct {
	EventType string
	Hotels    []hotels.Hotel
	Timestamp time.Time
}

// RealtimeDispatcher fans hotel snapshots out to stream subscribers. A slow
// subscriber loses intermediate snapshots but always receives the latest.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  4,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishSnapshot matches the snapshot callback of the sync store.
func (d *RealtimeDispatcher) PublishSnapshot(list []hotels.Hotel) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventSnapshot,
		Hotels:    list,
		Timestamp: d.clock(),
	})
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
			continue
		default:
		}
		// Full buffer: drop the oldest message so the newest snapshot lands.
		select {
		case <-subscriber.stream:
		default:
		}
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
