package syncstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	errMissingCollection = errors.New("remote collection is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew   = "syncstore.store.new"
	opSubscribe  = "syncstore.subscribe"
	opReorder    = "syncstore.reorder_hotels"
	opUpdateRoom = "syncstore.update_room"
	opAddRoom    = "syncstore.add_room"
	opDeleteRoom = "syncstore.delete_room"

	roomsField = "rooms"
	orderField = "order"
	fieldHotel = "hotel"
	fieldRoom  = "room"

	metricsName = "roomboard_sync_writes_total"
	metricsHelp = "Remote writes issued by the sync store, by operation and result."
	resultOK    = "ok"
	resultError = "error"

	reasonFeed     = "feed_failed"
	reasonMissing  = "missing_collection"
	reasonMetrics  = "metrics_registration_failed"
	reasonNotFound = "hotel_not_found"
	reasonNoRoom   = "room_not_found"
	reasonInvalid  = "invalid_room"
	reasonDupRoom  = "duplicate_room"
	reasonRejected = "write_rejected"
	reasonFailed   = "write_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// RemoteCollection is the realtime document collection holding one document
// per hotel, keyed by hotel name.
type RemoteCollection interface {
	Subscribe(ctx context.Context) (<-chan docstore.Snapshot, <-chan error)
	Update(ctx context.Context, key string, fields map[string]any) error
	ArrayAppend(ctx context.Context, key, field string, values ...any) error
	Commit(ctx context.Context, writes []docstore.Write) error
}

type Config struct {
	Collection RemoteCollection
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Store keeps the latest hotels snapshot and turns edit commands into remote
// writes. Writes never touch the cache; the next snapshot reconciles it.
// Concurrent edits of one hotel are last-write-wins on the whole room list.
type Store struct {
	collection RemoteCollection
	logger     *zap.Logger
	writes     *prometheus.CounterVec

	mu       sync.RWMutex
	hotels   []hotels.Hotel
	sequence int64
	loaded   bool
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Collection == nil {
		return nil, newServiceError(opStoreNew, reasonMissing, errMissingCollection)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	writes, err := registerWriteCounter(cfg.Registerer)
	if err != nil {
		return nil, newServiceError(opStoreNew, reasonMetrics, err)
	}
	return &Store{
		collection: cfg.Collection,
		logger:     logger,
		writes:     writes,
		hotels:     []hotels.Hotel{},
	}, nil
}

func registerWriteCounter(registerer prometheus.Registerer) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsName,
		Help: metricsHelp,
	}, []string{"operation", "result"})
	if registerer == nil {
		return counter, nil
	}
	if err := registerer.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// Subscribe delivers the initial snapshot and one snapshot per remote change
// to onSnapshot, in order, on one goroutine. onError fires at most once and
// ends the subscription; callers retry by subscribing again. The returned
// function unsubscribes.
func (store *Store) Subscribe(ctx context.Context, onSnapshot func([]hotels.Hotel), onError func(error)) func() {
	subscriptionCtx, cancel := context.WithCancel(ctx)
	snapshots, errs := store.collection.Subscribe(subscriptionCtx)

	go func() {
		defer cancel()
		for snapshot := range snapshots {
			list := store.decodeSnapshot(snapshot)
			store.apply(snapshot.Sequence, list)
			if subscriptionCtx.Err() != nil {
				return
			}
			if onSnapshot != nil {
				onSnapshot(copyHotels(list))
			}
		}
		err, ok := <-errs
		if !ok || err == nil || subscriptionCtx.Err() != nil {
			return
		}
		store.logError(opSubscribe, reasonFeed, err)
		if onError != nil {
			onError(newServiceError(opSubscribe, reasonFeed, fmt.Errorf("%w: %w", hotels.ErrSubscription, err)))
		}
	}()

	return cancel
}

// Hotels returns a copy of the cached hotels in collection order.
func (store *Store) Hotels() []hotels.Hotel {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return copyHotels(store.hotels)
}

// Hotel returns a copy of the cached hotel with the given name.
func (store *Store) Hotel(name string) (hotels.Hotel, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	hotel, ok := hotels.FindHotel(store.hotels, name)
	if !ok {
		return hotels.Hotel{}, false
	}
	return hotel.Normalized(), true
}

// Loaded reports whether at least one snapshot has been applied.
func (store *Store) Loaded() bool {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.loaded
}

// ReorderHotels assigns order = index to every hotel in one atomic batch.
func (store *Store) ReorderHotels(ctx context.Context, ordered []hotels.Hotel) error {
	writes := make([]docstore.Write, 0, len(ordered))
	for index, hotel := range ordered {
		writes = append(writes, docstore.UpdateWrite(hotel.Name, map[string]any{orderField: index}))
	}
	if err := store.collection.Commit(ctx, writes); err != nil {
		store.observe(opReorder, err)
		store.logError(opReorder, reasonFailed, err)
		return newServiceError(opReorder, reasonFailed, fmt.Errorf("%w: %w", hotels.ErrWriteFailed, err))
	}
	store.observe(opReorder, nil)
	return nil
}

// UpdateRoom applies transform to the cached room and writes the hotel's
// whole room list back.
func (store *Store) UpdateRoom(ctx context.Context, hotelName, roomNumber string, transform hotels.RoomTransform) error {
	hotel, ok := store.Hotel(hotelName)
	if !ok {
		return newServiceError(opUpdateRoom, reasonNotFound, fmt.Errorf("%w: hotel %q", hotels.ErrNotFound, hotelName))
	}
	index := slices.IndexFunc(hotel.Rooms, func(room hotels.Room) bool {
		return room.RoomNumber == roomNumber
	})
	if index < 0 {
		return newServiceError(opUpdateRoom, reasonNoRoom, fmt.Errorf("%w: room %q in hotel %q", hotels.ErrNotFound, roomNumber, hotelName))
	}

	updated := transform(hotel.Rooms[index]).Normalized()
	if err := hotels.ValidateRoom(updated); err != nil {
		return newServiceError(opUpdateRoom, reasonInvalid, err)
	}
	hotel.Rooms[index] = updated

	err := store.collection.Update(ctx, hotelName, map[string]any{roomsField: hotel.Rooms})
	store.observe(opUpdateRoom, err)
	if err != nil {
		return store.writeError(opUpdateRoom, hotels.ErrNotFound, err,
			zap.String(fieldHotel, hotelName),
			zap.String(fieldRoom, roomNumber))
	}
	return nil
}

// AddRoom appends room to the hotel's room array without rewriting the list.
func (store *Store) AddRoom(ctx context.Context, hotelName string, room hotels.Room) error {
	room = room.Normalized()
	if err := hotels.ValidateRoom(room); err != nil {
		return newServiceError(opAddRoom, reasonInvalid, err)
	}
	if hotel, ok := store.Hotel(hotelName); ok {
		if _, exists := hotel.FindRoom(room.RoomNumber); exists {
			return newServiceError(opAddRoom, reasonDupRoom, fmt.Errorf("%w: room %q already exists in hotel %q", hotels.ErrConflict, room.RoomNumber, hotelName))
		}
	}

	err := store.collection.ArrayAppend(ctx, hotelName, roomsField, room)
	store.observe(opAddRoom, err)
	if err != nil {
		return store.writeError(opAddRoom, hotels.ErrConflict, err,
			zap.String(fieldHotel, hotelName),
			zap.String(fieldRoom, room.RoomNumber))
	}
	return nil
}

// DeleteRoom removes the room from the cached list and writes the list back.
func (store *Store) DeleteRoom(ctx context.Context, hotelName, roomNumber string) error {
	hotel, ok := store.Hotel(hotelName)
	if !ok {
		return newServiceError(opDeleteRoom, reasonNotFound, fmt.Errorf("%w: hotel %q", hotels.ErrNotFound, hotelName))
	}
	if _, exists := hotel.FindRoom(roomNumber); !exists {
		return newServiceError(opDeleteRoom, reasonNoRoom, fmt.Errorf("%w: room %q in hotel %q", hotels.ErrNotFound, roomNumber, hotelName))
	}
	remaining := slices.DeleteFunc(hotel.Rooms, func(room hotels.Room) bool {
		return room.RoomNumber == roomNumber
	})

	err := store.collection.Update(ctx, hotelName, map[string]any{roomsField: remaining})
	store.observe(opDeleteRoom, err)
	if err != nil {
		return store.writeError(opDeleteRoom, hotels.ErrNotFound, err,
			zap.String(fieldHotel, hotelName),
			zap.String(fieldRoom, roomNumber))
	}
	return nil
}

func (store *Store) apply(sequence int64, list []hotels.Hotel) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.loaded && sequence < store.sequence {
		return
	}
	store.hotels = list
	store.sequence = sequence
	store.loaded = true
}

func (store *Store) decodeSnapshot(snapshot docstore.Snapshot) []hotels.Hotel {
	list := make([]hotels.Hotel, 0, len(snapshot.Records))
	for _, record := range snapshot.Records {
		var hotel hotels.Hotel
		if err := record.Decode(&hotel); err != nil {
			store.logger.Warn("hotel document skipped",
				zap.String(fieldHotel, record.Key),
				zap.Error(err))
			continue
		}
		if hotel.Name == "" {
			continue
		}
		list = append(list, hotel.Normalized())
	}
	return list
}

// writeError maps a remote rejection of a missing document to missing and
// any other failure to ErrWriteFailed.
func (store *Store) writeError(operation string, missing error, err error, fields ...zap.Field) error {
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return newServiceError(operation, reasonRejected, fmt.Errorf("%w: %w", missing, err))
	}
	store.logError(operation, reasonFailed, err, fields...)
	return newServiceError(operation, reasonFailed, fmt.Errorf("%w: %w", hotels.ErrWriteFailed, err))
}

func (store *Store) observe(operation string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	store.writes.WithLabelValues(operation, result).Inc()
}

func (store *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	store.logger.Error("sync store error", attrs...)
}

func copyHotels(list []hotels.Hotel) []hotels.Hotel {
	copied := make([]hotels.Hotel, 0, len(list))
	for _, hotel := range list {
		copied = append(copied, hotel.Normalized())
	}
	return copied
}
