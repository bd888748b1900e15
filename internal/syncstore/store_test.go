package syncstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordedUpdate struct {
	key    string
	fields map[string]any
}

type recordedAppend struct {
	key    string
	field  string
	values []any
}

type fakeCollection struct {
	mu        sync.Mutex
	snapshots chan docstore.Snapshot
	errs      chan error
	updates   []recordedUpdate
	appends   []recordedAppend
	commits   [][]docstore.Write
	updateErr error
	appendErr error
	commitErr error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		snapshots: make(chan docstore.Snapshot, 4),
		errs:      make(chan error, 1),
	}
}

func (f *fakeCollection) Subscribe(ctx context.Context) (<-chan docstore.Snapshot, <-chan error) {
	return f.snapshots, f.errs
}

func (f *fakeCollection) Update(ctx context.Context, key string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, recordedUpdate{key: key, fields: fields})
	return f.updateErr
}

func (f *fakeCollection) ArrayAppend(ctx context.Context, key, field string, values ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, recordedAppend{key: key, field: field, values: values})
	return f.appendErr
}

func (f *fakeCollection) Commit(ctx context.Context, writes []docstore.Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, writes)
	return f.commitErr
}

func newFakeStore(testContext *testing.T, collection *fakeCollection) *Store {
	testContext.Helper()
	store, err := NewStore(Config{Collection: collection, Registerer: prometheus.NewRegistry()})
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func stringPointer(value string) *string {
	return &value
}

func azalea() hotels.Hotel {
	return hotels.Hotel{
		Name: "Azalea",
		Rooms: []hotels.Room{
			{RoomNumber: "101", RoomType: stringPointer("Suite"), Occupants: []hotels.Occupant{}, Tags: []string{}},
			{RoomNumber: "102", Occupants: []hotels.Occupant{{Name: "Ravi"}}, Tags: []string{}},
		},
	}
}

func writtenRooms(testContext *testing.T, update recordedUpdate) []hotels.Room {
	testContext.Helper()
	rooms, ok := update.fields[roomsField].([]hotels.Room)
	if !ok {
		testContext.Fatalf("expected rooms field, got %T", update.fields[roomsField])
	}
	return rooms
}

func TestNewStoreRequiresCollection(testContext *testing.T) {
	_, err := NewStore(Config{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "syncstore.store.new.missing_collection" {
		testContext.Fatalf("expected missing collection error, got %v", err)
	}
}

func TestNewStoreSharesRegisteredCounter(testContext *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewStore(Config{Collection: newFakeCollection(), Registerer: registry})
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	second, err := NewStore(Config{Collection: newFakeCollection(), Registerer: registry})
	if err != nil {
		testContext.Fatalf("expected second store to reuse counter, got %v", err)
	}
	if first.writes != second.writes {
		testContext.Fatalf("expected shared counter vector")
	}
}

func TestUpdateRoomNotFoundWithoutWrite(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)
	assign, _ := hotels.AssignOccupant("Priya")

	if err := store.UpdateRoom(context.Background(), "Azalea", "101", assign); !errors.Is(err, hotels.ErrNotFound) {
		testContext.Fatalf("expected not found for uncached hotel, got %v", err)
	}

	store.apply(1, []hotels.Hotel{azalea()})
	if err := store.UpdateRoom(context.Background(), "Azalea", "999", assign); !errors.Is(err, hotels.ErrNotFound) {
		testContext.Fatalf("expected not found for missing room, got %v", err)
	}
	if len(collection.updates) != 0 {
		testContext.Fatalf("expected no remote writes, got %d", len(collection.updates))
	}
}

func TestUpdateRoomWritesWholeListWithoutTouchingCache(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)
	store.apply(1, []hotels.Hotel{azalea()})

	assign, _ := hotels.AssignOccupant("Priya")
	if err := store.UpdateRoom(context.Background(), "Azalea", "101", assign); err != nil {
		testContext.Fatalf("update failed: %v", err)
	}
	if len(collection.updates) != 1 || collection.updates[0].key != "Azalea" {
		testContext.Fatalf("expected one update of Azalea, got %+v", collection.updates)
	}
	rooms := writtenRooms(testContext, collection.updates[0])
	if len(rooms) != 2 || len(rooms[0].Occupants) != 1 || rooms[0].Occupants[0].Name != "Priya" {
		testContext.Fatalf("unexpected written rooms %+v", rooms)
	}
	if rooms[1].Occupants[0].Name != "Ravi" {
		testContext.Fatalf("expected other rooms preserved, got %+v", rooms[1])
	}

	cached, _ := store.Hotel("Azalea")
	if len(cached.Rooms[0].Occupants) != 0 {
		testContext.Fatalf("expected cache to wait for the next snapshot")
	}
	if count := testutil.ToFloat64(store.writes.WithLabelValues(opUpdateRoom, resultOK)); count != 1 {
		testContext.Fatalf("expected one successful write observed, got %v", count)
	}
}

func TestUpdateRoomReportsWriteFailure(testContext *testing.T) {
	collection := newFakeCollection()
	collection.updateErr = errors.New("disk full")
	store := newFakeStore(testContext, collection)
	store.apply(1, []hotels.Hotel{azalea()})

	err := store.UpdateRoom(context.Background(), "Azalea", "101", hotels.RemoveTag("vip"))
	if !errors.Is(err, hotels.ErrWriteFailed) {
		testContext.Fatalf("expected write failed, got %v", err)
	}
	if count := testutil.ToFloat64(store.writes.WithLabelValues(opUpdateRoom, resultError)); count != 1 {
		testContext.Fatalf("expected failed write observed, got %v", count)
	}
}

func TestReadModifyWriteIsLastWriteWins(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)
	store.apply(1, []hotels.Hotel{azalea()})

	first, _ := hotels.AssignOccupant("Asha")
	second, _ := hotels.AssignOccupant("Vikram")
	if err := store.UpdateRoom(context.Background(), "Azalea", "101", first); err != nil {
		testContext.Fatalf("first update failed: %v", err)
	}
	if err := store.UpdateRoom(context.Background(), "Azalea", "101", second); err != nil {
		testContext.Fatalf("second update failed: %v", err)
	}

	last := writtenRooms(testContext, collection.updates[1])
	if len(last[0].Occupants) != 1 || last[0].Occupants[0].Name != "Vikram" {
		testContext.Fatalf("expected second write to drop the first edit, got %+v", last[0].Occupants)
	}
}

func TestAddRoom(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)
	store.apply(1, []hotels.Hotel{azalea()})
	ctx := context.Background()

	if err := store.AddRoom(ctx, "Azalea", hotels.Room{RoomNumber: " "}); !errors.Is(err, hotels.ErrValidation) {
		testContext.Fatalf("expected validation error, got %v", err)
	}
	if err := store.AddRoom(ctx, "Azalea", hotels.Room{RoomNumber: "101"}); !errors.Is(err, hotels.ErrConflict) {
		testContext.Fatalf("expected conflict for duplicate room, got %v", err)
	}

	room, _ := hotels.NewRoom("202", "Deluxe")
	if err := store.AddRoom(ctx, "Azalea", room); err != nil {
		testContext.Fatalf("add failed: %v", err)
	}
	if len(collection.appends) != 1 || collection.appends[0].field != roomsField {
		testContext.Fatalf("expected one append to rooms, got %+v", collection.appends)
	}
	if len(collection.updates) != 0 {
		testContext.Fatalf("expected no full-list write for add")
	}

	collection.appendErr = docstore.ErrDocumentNotFound
	if err := store.AddRoom(ctx, "Ghost", room); !errors.Is(err, hotels.ErrConflict) {
		testContext.Fatalf("expected conflict for missing hotel document, got %v", err)
	}
}

func TestDeleteRoom(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)
	store.apply(1, []hotels.Hotel{azalea()})
	ctx := context.Background()

	if err := store.DeleteRoom(ctx, "Azalea", "999"); !errors.Is(err, hotels.ErrNotFound) {
		testContext.Fatalf("expected not found, got %v", err)
	}
	if err := store.DeleteRoom(ctx, "Ghost", "101"); !errors.Is(err, hotels.ErrNotFound) {
		testContext.Fatalf("expected not found, got %v", err)
	}
	if err := store.DeleteRoom(ctx, "Azalea", "101"); err != nil {
		testContext.Fatalf("delete failed: %v", err)
	}
	rooms := writtenRooms(testContext, collection.updates[0])
	if len(rooms) != 1 || rooms[0].RoomNumber != "102" {
		testContext.Fatalf("unexpected remaining rooms %+v", rooms)
	}
}

func TestReorderHotelsSingleBatch(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)

	ordered := []hotels.Hotel{{Name: "Tawa"}, {Name: "Anandam"}, {Name: "Platinum"}}
	if err := store.ReorderHotels(context.Background(), ordered); err != nil {
		testContext.Fatalf("reorder failed: %v", err)
	}
	if len(collection.commits) != 1 || len(collection.commits[0]) != 3 {
		testContext.Fatalf("expected one batch of three writes, got %+v", collection.commits)
	}
	for index, write := range collection.commits[0] {
		if write.Key != ordered[index].Name || write.Fields[orderField] != index {
			testContext.Fatalf("unexpected write %d: %+v", index, write)
		}
	}

	collection.commitErr = errors.New("batch rejected")
	if err := store.ReorderHotels(context.Background(), ordered); !errors.Is(err, hotels.ErrWriteFailed) {
		testContext.Fatalf("expected write failed, got %v", err)
	}
}

func TestApplyIgnoresOlderSnapshots(testContext *testing.T) {
	store := newFakeStore(testContext, newFakeCollection())
	store.apply(5, []hotels.Hotel{{Name: "New"}})
	store.apply(3, []hotels.Hotel{{Name: "Old"}})

	list := store.Hotels()
	if len(list) != 1 || list[0].Name != "New" {
		testContext.Fatalf("expected newest snapshot to stay cached, got %+v", list)
	}
}

func TestSubscribeDecodesAndReportsErrorOnce(testContext *testing.T) {
	collection := newFakeCollection()
	store := newFakeStore(testContext, collection)

	collection.snapshots <- docstore.Snapshot{
		Sequence: 1,
		Records: []docstore.Record{
			{Key: "Azalea", Body: []byte(`{"name":"Azalea","rooms":[{"room_number":"101","occupants":null}]}`)},
			{Key: "broken", Body: []byte(`{"name":`)},
			{Key: "nameless", Body: []byte(`{"rooms":[]}`)},
		},
	}
	collection.errs <- errors.New("feed lost")
	close(collection.errs)
	close(collection.snapshots)

	received := make(chan []hotels.Hotel, 1)
	failures := make(chan error, 2)
	unsubscribe := store.Subscribe(context.Background(),
		func(list []hotels.Hotel) { received <- list },
		func(err error) { failures <- err })
	defer unsubscribe()

	list := <-received
	if len(list) != 1 || list[0].Name != "Azalea" {
		testContext.Fatalf("expected only the valid hotel, got %+v", list)
	}
	if list[0].Rooms[0].Occupants == nil || list[0].Rooms[0].Tags == nil {
		testContext.Fatalf("expected normalized room lists")
	}

	err := <-failures
	if !errors.Is(err, hotels.ErrSubscription) {
		testContext.Fatalf("expected subscription error, got %v", err)
	}
	select {
	case extra := <-failures:
		testContext.Fatalf("expected a single error, got another %v", extra)
	default:
	}
}
