package docstore

import (
	"context"
	"sync"
	"time"
)

// ChangeMessage announces that a collection changed.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher fans change messages out to per-collection subscribers. Each
// subscriber holds at most one pending message; a pending message already
// implies a reload, so further messages are dropped until it is consumed.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*changeSubscriber
	nextID      int64
}

type changeSubscriber struct {
	id     int64
	stream chan ChangeMessage
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*changeSubscriber),
	}
}

// Subscribe registers for changes of collection until ctx ends or the
// returned cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context, collection string) (<-chan ChangeMessage, func()) {
	if collection == "" {
		ch := make(chan ChangeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &changeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ChangeMessage, 1),
	}
	d.registerSubscriber(collection, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(collection, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *Dispatcher) Publish(message ChangeMessage) {
	if message.Collection == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Collection]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*changeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers for collection.
func (d *Dispatcher) SubscriberCount(collection string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[collection])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) registerSubscriber(collection string, subscriber *changeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[collection]; !ok {
		d.subscribers[collection] = make(map[int64]*changeSubscriber)
	}
	d.subscribers[collection][subscriber.id] = subscriber
}

func (d *Dispatcher) unregisterSubscriber(collection string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[collection]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, collection)
		}
	}
	d.mu.Unlock()
}
