package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/roomboard/internal/database"
	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/MarcoPoloResearchLab/roomboard/internal/seed"
	"github.com/MarcoPoloResearchLab/roomboard/internal/server"
	"github.com/MarcoPoloResearchLab/roomboard/internal/syncstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	collectionName  = "hotels"
	jsonContentType = "application/json"
	pollTimeout     = 5 * time.Second
)

const seedDocument = `[
  {"name": "Azalea", "rooms": [
    {"room_number": "101", "room_type": "Suite", "occupants": [], "tags": []},
    {"room_number": "102", "room_type": "Deluxe", "occupants": [], "tags": []}
  ]},
  {"name": "Tawa", "rooms": [{"room_number": "1", "occupants": [], "tags": []}]},
  {"name": "Platinum", "rooms": []}
]`

type boardProcess struct {
	documents  *docstore.Store
	collection *docstore.Collection
}

func openProcess(testContext *testing.T, ctx context.Context, databasePath string, redisAddress string, forward bool) *boardProcess {
	testContext.Helper()

	db, err := database.OpenSQLite(databasePath+"?_pragma=busy_timeout(5000)", zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	testContext.Cleanup(func() { _ = sqlDB.Close() })

	client := redis.NewClient(&redis.Options{Addr: redisAddress})
	testContext.Cleanup(func() { _ = client.Close() })

	idProvider := docstore.NewUUIDProvider()
	origin, err := idProvider.NewID()
	if err != nil {
		testContext.Fatalf("failed to generate origin: %v", err)
	}
	relay, err := docstore.NewRedisRelay(docstore.RedisRelayConfig{Client: client, Origin: origin})
	if err != nil {
		testContext.Fatalf("failed to construct relay: %v", err)
	}
	dispatcher := docstore.NewDispatcher()
	documents, err := docstore.NewStore(docstore.Config{
		Database:   db,
		IDProvider: idProvider,
		Dispatcher: dispatcher,
		Relay:      relay,
		Origin:     origin,
	})
	if err != nil {
		testContext.Fatalf("failed to construct docstore: %v", err)
	}
	if forward {
		stop, err := relay.Forward(ctx, dispatcher)
		if err != nil {
			testContext.Fatalf("failed to forward relay: %v", err)
		}
		testContext.Cleanup(stop)
	}
	return &boardProcess{documents: documents, collection: documents.Collection(collectionName)}
}

func fetchHotels(testContext *testing.T, baseURL string) []hotels.Hotel {
	testContext.Helper()
	response, err := http.Get(baseURL + "/api/hotels")
	if err != nil {
		testContext.Fatalf("list hotels failed: %v", err)
	}
	defer response.Body.Close()
	var payload struct {
		Hotels []hotels.Hotel `json:"hotels"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		testContext.Fatalf("failed to decode hotels: %v", err)
	}
	return payload.Hotels
}

func waitForHotels(testContext *testing.T, baseURL string, description string, predicate func([]hotels.Hotel) bool) []hotels.Hotel {
	testContext.Helper()
	deadline := time.Now().Add(pollTimeout)
	for {
		list := fetchHotels(testContext, baseURL)
		if predicate(list) {
			return list
		}
		if time.Now().After(deadline) {
			testContext.Fatalf("timed out waiting for %s, last hotels %+v", description, list)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func send(testContext *testing.T, method, url, body string) *http.Response {
	testContext.Helper()
	request, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		request.Header.Set("Content-Type", jsonContentType)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, url, err)
	}
	_ = response.Body.Close()
	return response
}

func hotelNames(list []hotels.Hotel) []string {
	names := make([]string, 0, len(list))
	for _, hotel := range list {
		names = append(names, hotel.Name)
	}
	return names
}

func TestSeedAssignAndReorderAcrossProcesses(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	testContext.Cleanup(cancel)

	redisServer := miniredis.RunT(testContext)
	databasePath := filepath.Join(testContext.TempDir(), "board.db")

	serverProcess := openProcess(testContext, ctx, databasePath, redisServer.Addr(), true)
	store, err := syncstore.NewStore(syncstore.Config{Collection: serverProcess.collection, Registerer: prometheus.NewRegistry()})
	if err != nil {
		testContext.Fatalf("failed to construct sync store: %v", err)
	}
	realtime := server.NewRealtimeDispatcher()
	unsubscribe := store.Subscribe(ctx, realtime.PublishSnapshot, func(err error) {
		testContext.Errorf("unexpected subscription failure: %v", err)
	})
	testContext.Cleanup(unsubscribe)

	handler, err := server.NewHTTPHandler(server.Dependencies{Store: store, Realtime: realtime, Gatherer: prometheus.NewRegistry()})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}
	httpServer := httptest.NewServer(handler)
	testContext.Cleanup(httpServer.Close)

	waitForHotels(testContext, httpServer.URL, "empty board", func(list []hotels.Hotel) bool { return store.Loaded() && len(list) == 0 })

	seederProcess := openProcess(testContext, ctx, databasePath, redisServer.Addr(), false)
	var list []hotels.Hotel
	if err := json.Unmarshal([]byte(seedDocument), &list); err != nil {
		testContext.Fatalf("failed to decode seed document: %v", err)
	}
	if _, err := seed.Apply(ctx, seederProcess.collection, list, seed.Options{OrderByPosition: true}); err != nil {
		testContext.Fatalf("seed failed: %v", err)
	}

	seeded := waitForHotels(testContext, httpServer.URL, "seeded hotels", func(list []hotels.Hotel) bool { return len(list) == 3 })
	if names := hotelNames(seeded); names[0] != "Azalea" || names[1] != "Tawa" || names[2] != "Platinum" {
		testContext.Fatalf("expected seeded display order, got %v", names)
	}

	if response := send(testContext, http.MethodPost, httpServer.URL+"/api/rooms/Azalea/101/assign", `{"name":"Priya"}`); response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected assign status %d", response.StatusCode)
	}
	waitForHotels(testContext, httpServer.URL, "assigned occupant", func(list []hotels.Hotel) bool {
		azalea, ok := hotels.FindHotel(list, "Azalea")
		if !ok {
			return false
		}
		room, found := azalea.FindRoom("101")
		return found && len(room.Occupants) == 1 && room.Occupants[0].Name == "Priya"
	})

	record, err := seederProcess.collection.Get(ctx, "Azalea")
	if err != nil {
		testContext.Fatalf("seeder failed to read Azalea: %v", err)
	}
	var stored hotels.Hotel
	if err := record.Decode(&stored); err != nil {
		testContext.Fatalf("failed to decode Azalea: %v", err)
	}
	if room, _ := stored.FindRoom("101"); len(room.Occupants) != 1 {
		testContext.Fatalf("expected the write to be visible to other processes, got %+v", room)
	}

	if response := send(testContext, http.MethodPut, httpServer.URL+"/api/hotels/order", `{"names":["Platinum","Tawa","Azalea"]}`); response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected reorder status %d", response.StatusCode)
	}
	reordered := waitForHotels(testContext, httpServer.URL, "reordered hotels", func(list []hotels.Hotel) bool {
		return len(list) == 3 && list[0].Name == "Platinum"
	})
	for index, hotel := range reordered {
		if hotel.Order == nil || *hotel.Order != index {
			testContext.Fatalf("expected order %d for %s, got %v", index, hotel.Name, hotel.Order)
		}
	}

	if response := send(testContext, http.MethodPost, httpServer.URL+"/api/rooms/Azalea/add", `{"room_number":"101"}`); response.StatusCode != http.StatusConflict {
		testContext.Fatalf("expected duplicate room conflict, got %d", response.StatusCode)
	}
	if response := send(testContext, http.MethodDelete, httpServer.URL+"/api/rooms/Ghost/101", ""); response.StatusCode != http.StatusNotFound {
		testContext.Fatalf("expected missing hotel not found, got %d", response.StatusCode)
	}
}
