package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingHotelStore = errors.New("hotel store dependency required")
	errMissingRealtime   = errors.New("realtime dispatcher dependency required")
)

// HotelStore is the synchronized hotels cache the handlers read and write through.
type HotelStore interface {
	Hotels() []hotels.Hotel
	Hotel(name string) (hotels.Hotel, bool)
	Loaded() bool
	ReorderHotels(ctx context.Context, ordered []hotels.Hotel) error
	UpdateRoom(ctx context.Context, hotelName, roomNumber string, transform hotels.RoomTransform) error
	AddRoom(ctx context.Context, hotelName string, room hotels.Room) error
	DeleteRoom(ctx context.Context, hotelName, roomNumber string) error
}

type Dependencies struct {
	Store             HotelStore
	Realtime          *RealtimeDispatcher
	Gatherer          prometheus.Gatherer
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingHotelStore
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		store:     deps.Store,
		realtime:  deps.Realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/hotels", handler.handleListHotels)
	api.PUT("/hotels/order", handler.handleReorderHotels)
	api.GET("/hotels/:hotel", handler.handleGetHotel)
	api.GET("/hotels/:hotel/types", handler.handleRoomTypes)
	api.GET("/search", handler.handleSearch)
	api.GET("/stream", handler.handleStream)

	rooms := api.Group("/rooms/:hotel")
	rooms.POST("/add", handler.handleAddRoom)
	rooms.DELETE("/:room", handler.handleDeleteRoom)
	rooms.POST("/:room/assign", handler.handleAssign)
	rooms.POST("/:room/unassign", handler.handleUnassign)
	rooms.POST("/:room/tags", handler.handleAddTag)
	rooms.DELETE("/:room/tags/:tag", handler.handleRemoveTag)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	store     HotelStore
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

type hotelsResponsePayload struct {
	Hotels []hotels.Hotel `json:"hotels"`
	Loaded bool           `json:"loaded"`
}

type roomsQueryPayload struct {
	Query string `form:"q"`
	Type  string `form:"type"`
	Sort  string `form:"sort" binding:"omitempty,oneof=asc desc"`
}

type reorderRequestPayload struct {
	Names []string `json:"names" binding:"required,min=1,dive,required"`
}

type addRoomRequestPayload struct {
	RoomNumber   string            `json:"room_number" binding:"required"`
	RoomType     *string           `json:"room_type"`
	Occupants    []hotels.Occupant `json:"occupants"`
	Tags         []string          `json:"tags"`
	MaxOccupancy *int              `json:"max_occupancy" binding:"omitempty,min=0"`
}

type assignRequestPayload struct {
	Name string `json:"name" binding:"required"`
}

type unassignQueryPayload struct {
	OccupantName string `form:"occupant_name" binding:"required"`
}

type tagQueryPayload struct {
	Tag string `form:"tag" binding:"required"`
}

type snapshotEventPayload struct {
	Hotels    []hotels.Hotel `json:"hotels"`
	Source    string         `json:"source"`
	Timestamp int64          `json:"timestamp"`
}

func (h *httpHandler) handleListHotels(c *gin.Context) {
	c.JSON(http.StatusOK, hotelsResponsePayload{
		Hotels: hotels.SortedHotels(h.store.Hotels()),
		Loaded: h.store.Loaded(),
	})
}

func (h *httpHandler) handleGetHotel(c *gin.Context) {
	var query roomsQueryPayload
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	hotel, ok := h.store.Hotel(c.Param("hotel"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found", "code": "hotel.not_found"})
		return
	}
	roomType := query.Type
	if roomType == "" {
		roomType = hotels.AllTypes
	}
	hotel.Rooms = hotels.Sort(hotels.Filter(hotel.Rooms, query.Query, roomType), hotels.ParseSortOrder(query.Sort))
	c.JSON(http.StatusOK, hotel)
}

func (h *httpHandler) handleRoomTypes(c *gin.Context) {
	hotel, ok := h.store.Hotel(c.Param("hotel"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found", "code": "hotel.not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": hotels.DistinctTypes(hotel.Rooms)})
}

func (h *httpHandler) handleReorderHotels(c *gin.Context) {
	var request reorderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ordered, err := hotels.Reorder(h.store.Hotels(), request.Names)
	if err != nil {
		h.respondError(c, "reorder hotels", err)
		return
	}
	if err := h.store.ReorderHotels(c.Request.Context(), ordered); err != nil {
		h.respondError(c, "reorder hotels", err)
		return
	}
	names := make([]string, 0, len(ordered))
	for _, hotel := range ordered {
		names = append(names, hotel.Name)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Hotels reordered", "names": names})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"results": hotels.Search(hotels.SortedHotels(h.store.Hotels()), term)})
}

func (h *httpHandler) handleAddRoom(c *gin.Context) {
	var request addRoomRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	roomType := ""
	if request.RoomType != nil {
		roomType = *request.RoomType
	}
	room, err := hotels.NewRoom(request.RoomNumber, roomType)
	if err != nil {
		h.respondError(c, "add room", err)
		return
	}
	room.Occupants = append(room.Occupants, request.Occupants...)
	room.Tags = append(room.Tags, request.Tags...)
	room.MaxOccupancy = request.MaxOccupancy
	if err := hotels.ValidateRoom(room); err != nil {
		h.respondError(c, "add room", err)
		return
	}

	hotelName := c.Param("hotel")
	if _, ok := h.store.Hotel(hotelName); !ok {
		h.respondError(c, "add room", fmt.Errorf("%w: hotel %q", hotels.ErrNotFound, hotelName))
		return
	}
	if err := h.store.AddRoom(c.Request.Context(), hotelName, room); err != nil {
		h.respondError(c, "add room", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Room added", "room": room})
}

func (h *httpHandler) handleDeleteRoom(c *gin.Context) {
	roomNumber := c.Param("room")
	if err := h.store.DeleteRoom(c.Request.Context(), c.Param("hotel"), roomNumber); err != nil {
		h.respondError(c, "delete room", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Room %s deleted", roomNumber)})
}

func (h *httpHandler) handleAssign(c *gin.Context) {
	var request assignRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	transform, err := hotels.AssignOccupant(request.Name)
	if err != nil {
		h.respondError(c, "assign occupant", err)
		return
	}
	hotelName, roomNumber := c.Param("hotel"), c.Param("room")
	if err := h.store.UpdateRoom(c.Request.Context(), hotelName, roomNumber, transform); err != nil {
		h.respondError(c, "assign occupant", err)
		return
	}
	overCapacity := false
	if hotel, ok := h.store.Hotel(hotelName); ok {
		if room, found := hotel.FindRoom(roomNumber); found {
			overCapacity = transform(room).OverCapacity()
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Occupant assigned", "over_capacity": overCapacity})
}

func (h *httpHandler) handleUnassign(c *gin.Context) {
	var query unassignQueryPayload
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	hotelName, roomNumber := c.Param("hotel"), c.Param("room")
	if hotel, ok := h.store.Hotel(hotelName); ok {
		if room, found := hotel.FindRoom(roomNumber); found && !slices.ContainsFunc(room.Occupants, func(occupant hotels.Occupant) bool {
			return occupant.Name == query.OccupantName
		}) {
			h.respondError(c, "unassign occupant", fmt.Errorf("%w: occupant %q not in room %q", hotels.ErrNotFound, query.OccupantName, roomNumber))
			return
		}
	}
	if err := h.store.UpdateRoom(c.Request.Context(), hotelName, roomNumber, hotels.UnassignOccupant(query.OccupantName)); err != nil {
		h.respondError(c, "unassign occupant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Occupant unassigned"})
}

func (h *httpHandler) handleAddTag(c *gin.Context) {
	var query tagQueryPayload
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	transform, err := hotels.AddTag(query.Tag)
	if err != nil {
		h.respondError(c, "add tag", err)
		return
	}
	if err := h.store.UpdateRoom(c.Request.Context(), c.Param("hotel"), c.Param("room"), transform); err != nil {
		h.respondError(c, "add tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tag added"})
}

func (h *httpHandler) handleRemoveTag(c *gin.Context) {
	if err := h.store.UpdateRoom(c.Request.Context(), c.Param("hotel"), c.Param("room"), hotels.RemoveTag(c.Param("tag"))); err != nil {
		h.respondError(c, "remove tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tag removed"})
}

// handleStream sends the cached hotels as the first event and every later
// snapshot as it arrives, with heartbeats in between.
func (h *httpHandler) handleStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	h.writeSnapshot(c, h.store.Hotels(), time.Now())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			h.writeSnapshot(c, message.Hotels, message.Timestamp)
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": now.Unix()})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) writeSnapshot(c *gin.Context, list []hotels.Hotel, at time.Time) {
	c.SSEvent(RealtimeEventSnapshot, snapshotEventPayload{
		Hotels:    hotels.SortedHotels(list),
		Source:    realtimeSourceBackend,
		Timestamp: at.Unix(),
	})
	c.Writer.Flush()
}

type codedError interface {
	Code() string
}

func (h *httpHandler) respondError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hotels.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, hotels.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hotels.ErrConflict):
		status = http.StatusConflict
	}

	code := "internal"
	var coded codedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("action", action), zap.String("code", code), zap.Error(err))
		message = "write failed"
	} else {
		h.logger.Warn("request rejected", zap.String("action", action), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}
