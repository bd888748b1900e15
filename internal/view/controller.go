package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("sync store is required")
	errNoSelection  = fmt.Errorf("%w: no hotel selected", hotels.ErrNotFound)
	noOpLogger      = zap.NewNop()
)

// Status is the lifecycle of the hotels feed as seen by the view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-visible message raised by a command.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (fn NotifierFunc) Notify(notification Notification) {
	fn(notification)
}

// Store is the synchronized hotels source the controller edits through.
type Store interface {
	Subscribe(ctx context.Context, onSnapshot func([]hotels.Hotel), onError func(error)) func()
	ReorderHotels(ctx context.Context, ordered []hotels.Hotel) error
	UpdateRoom(ctx context.Context, hotelName, roomNumber string, transform hotels.RoomTransform) error
	AddRoom(ctx context.Context, hotelName string, room hotels.Room) error
	DeleteRoom(ctx context.Context, hotelName, roomNumber string) error
}

// AddRoomForm holds the add-room inputs between edits.
type AddRoomForm struct {
	Open       bool
	RoomNumber string
	RoomType   string
}

type Config struct {
	Store    Store
	Notifier Notifier
	Logger   *zap.Logger
}

// Controller holds transient view state over the synchronized hotels and
// turns user interactions into store commands. Command errors are returned
// and also raised as notifications.
type Controller struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger

	mu          sync.RWMutex
	hotels      []hotels.Hotel
	status      Status
	failure     error
	selected    string
	searchText  string
	typeFilter  string
	sortOrder   hotels.SortOrder
	globalTerm  string
	form        AddRoomForm
	unsubscribe func()
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Controller{
		store:      cfg.Store,
		notifier:   notifier,
		logger:     logger,
		hotels:     []hotels.Hotel{},
		status:     StatusIdle,
		typeFilter: hotels.AllTypes,
		sortOrder:  hotels.SortAscending,
	}, nil
}

// Start subscribes to the hotels feed. Calling Start again replaces the
// previous subscription.
func (controller *Controller) Start(ctx context.Context) {
	controller.mu.Lock()
	previous := controller.unsubscribe
	controller.unsubscribe = nil
	controller.status = StatusLoading
	controller.failure = nil
	controller.mu.Unlock()
	if previous != nil {
		previous()
	}

	unsubscribe := controller.store.Subscribe(ctx, controller.applySnapshot, controller.failSubscription)

	controller.mu.Lock()
	controller.unsubscribe = unsubscribe
	controller.mu.Unlock()
}

// Reload re-establishes the feed after a subscription error.
func (controller *Controller) Reload(ctx context.Context) {
	controller.logger.Info("reloading hotels feed")
	controller.Start(ctx)
}

// Stop ends the current subscription.
func (controller *Controller) Stop() {
	controller.mu.Lock()
	unsubscribe := controller.unsubscribe
	controller.unsubscribe = nil
	controller.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (controller *Controller) applySnapshot(list []hotels.Hotel) {
	controller.mu.Lock()
	controller.hotels = list
	controller.status = StatusReady
	controller.failure = nil
	controller.selected = hotels.SelectDefault(list, controller.selected)
	controller.mu.Unlock()
}

func (controller *Controller) failSubscription(err error) {
	controller.mu.Lock()
	controller.status = StatusFailed
	controller.failure = err
	controller.mu.Unlock()
	controller.logger.Error("hotels feed failed", zap.Error(err))
	controller.notifier.Notify(Notification{Level: LevelError, Message: "Lost connection to the hotels feed. Reload to retry.", Err: err})
}

// Status reports the feed state and the error that ended it, if any.
func (controller *Controller) Status() (Status, error) {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.status, controller.failure
}

// Hotels returns the hotels in display order.
func (controller *Controller) Hotels() []hotels.Hotel {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return hotels.SortedHotels(controller.hotels)
}

// SelectHotel picks the active hotel and clears the in-hotel filters.
func (controller *Controller) SelectHotel(name string) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.selected = name
	controller.searchText = ""
	controller.typeFilter = hotels.AllTypes
	controller.form = AddRoomForm{}
}

// Selected returns the selected hotel key, empty while unselected.
func (controller *Controller) Selected() string {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.selected
}

// SelectedHotel resolves the selection against the latest snapshot. A key
// that no longer resolves yields false.
func (controller *Controller) SelectedHotel() (hotels.Hotel, bool) {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.selectedHotelLocked()
}

func (controller *Controller) selectedHotelLocked() (hotels.Hotel, bool) {
	if controller.selected == "" {
		return hotels.Hotel{}, false
	}
	hotel, ok := hotels.FindHotel(controller.hotels, controller.selected)
	if !ok {
		return hotels.Hotel{}, false
	}
	return hotel.Normalized(), true
}

func (controller *Controller) SetSearchText(text string) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.searchText = text
}

func (controller *Controller) SearchText() string {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.searchText
}

func (controller *Controller) SetTypeFilter(roomType string) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	if roomType == "" {
		roomType = hotels.AllTypes
	}
	controller.typeFilter = roomType
}

func (controller *Controller) TypeFilter() string {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.typeFilter
}

func (controller *Controller) SetSortOrder(order hotels.SortOrder) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.sortOrder = order
}

// ToggleSortOrder flips between ascending and descending room order.
func (controller *Controller) ToggleSortOrder() hotels.SortOrder {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.sortOrder = controller.sortOrder.Toggle()
	return controller.sortOrder
}

func (controller *Controller) SortOrder() hotels.SortOrder {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.sortOrder
}

// VisibleRooms returns the selected hotel's rooms filtered then sorted.
func (controller *Controller) VisibleRooms() []hotels.Room {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	hotel, ok := controller.selectedHotelLocked()
	if !ok {
		return []hotels.Room{}
	}
	filtered := hotels.Filter(hotel.Rooms, controller.searchText, controller.typeFilter)
	return hotels.Sort(filtered, controller.sortOrder)
}

// RoomTypes lists the type filter choices for the selected hotel.
func (controller *Controller) RoomTypes() []string {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	hotel, _ := controller.selectedHotelLocked()
	return hotels.DistinctTypes(hotel.Rooms)
}

func (controller *Controller) SetGlobalSearch(term string) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.globalTerm = term
}

// GlobalSearch runs the cross-hotel search for the current term.
func (controller *Controller) GlobalSearch() []hotels.Result {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return hotels.Search(hotels.SortedHotels(controller.hotels), controller.globalTerm)
}

// OpenResult navigates to a search result: its hotel becomes selected and the
// in-hotel search narrows to the matched room or occupant.
func (controller *Controller) OpenResult(result hotels.Result) {
	controller.SelectHotel(result.HotelName)
	controller.SetSearchText(result.FilterTerm())
}

// Assign adds an occupant to a room of the selected hotel. Exceeding the
// room's advisory capacity raises a warning but still writes.
func (controller *Controller) Assign(ctx context.Context, roomNumber, occupantName string) error {
	transform, err := hotels.AssignOccupant(occupantName)
	if err != nil {
		return controller.fail("assign occupant", err)
	}
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("assign occupant", err)
	}
	if err := controller.store.UpdateRoom(ctx, hotel.Name, roomNumber, transform); err != nil {
		return controller.fail("assign occupant", err)
	}
	if room, ok := hotel.FindRoom(roomNumber); ok && transform(room).OverCapacity() {
		controller.notifier.Notify(Notification{
			Level:   LevelWarning,
			Message: fmt.Sprintf("Room %s is over its capacity of %d", roomNumber, *room.MaxOccupancy),
		})
	}
	return nil
}

// Unassign removes every occupant with the given name from a room.
func (controller *Controller) Unassign(ctx context.Context, roomNumber, occupantName string) error {
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("unassign occupant", err)
	}
	if err := controller.store.UpdateRoom(ctx, hotel.Name, roomNumber, hotels.UnassignOccupant(occupantName)); err != nil {
		return controller.fail("unassign occupant", err)
	}
	return nil
}

func (controller *Controller) AddTag(ctx context.Context, roomNumber, tag string) error {
	transform, err := hotels.AddTag(tag)
	if err != nil {
		return controller.fail("add tag", err)
	}
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("add tag", err)
	}
	if err := controller.store.UpdateRoom(ctx, hotel.Name, roomNumber, transform); err != nil {
		return controller.fail("add tag", err)
	}
	return nil
}

func (controller *Controller) RemoveTag(ctx context.Context, roomNumber, tag string) error {
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("remove tag", err)
	}
	if err := controller.store.UpdateRoom(ctx, hotel.Name, roomNumber, hotels.RemoveTag(tag)); err != nil {
		return controller.fail("remove tag", err)
	}
	return nil
}

func (controller *Controller) OpenAddRoomForm() {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.form = AddRoomForm{Open: true}
}

func (controller *Controller) SetAddRoomForm(roomNumber, roomType string) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.form.RoomNumber = roomNumber
	controller.form.RoomType = roomType
}

func (controller *Controller) CancelAddRoom() {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	controller.form = AddRoomForm{}
}

func (controller *Controller) AddRoomForm() AddRoomForm {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.form
}

// SubmitAddRoom adds the room described by the form to the selected hotel.
// The form is cleared only when the write succeeds.
func (controller *Controller) SubmitAddRoom(ctx context.Context) error {
	form := controller.AddRoomForm()
	room, err := hotels.NewRoom(form.RoomNumber, form.RoomType)
	if err != nil {
		return controller.fail("add room", err)
	}
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("add room", err)
	}
	if err := controller.store.AddRoom(ctx, hotel.Name, room); err != nil {
		return controller.fail("add room", err)
	}
	controller.CancelAddRoom()
	controller.notifier.Notify(Notification{Level: LevelInfo, Message: fmt.Sprintf("Room %s added to %s", room.RoomNumber, hotel.Name)})
	return nil
}

func (controller *Controller) DeleteRoom(ctx context.Context, roomNumber string) error {
	hotel, err := controller.requireSelection()
	if err != nil {
		return controller.fail("delete room", err)
	}
	if err := controller.store.DeleteRoom(ctx, hotel.Name, roomNumber); err != nil {
		return controller.fail("delete room", err)
	}
	return nil
}

// ReorderHotels persists the display order given by names. Unlisted hotels
// follow in their current order.
func (controller *Controller) ReorderHotels(ctx context.Context, names []string) error {
	ordered, err := hotels.Reorder(controller.Hotels(), names)
	if err != nil {
		return controller.fail("reorder hotels", err)
	}
	if err := controller.store.ReorderHotels(ctx, ordered); err != nil {
		return controller.fail("reorder hotels", err)
	}
	return nil
}

func (controller *Controller) requireSelection() (hotels.Hotel, error) {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	if controller.selected == "" {
		return hotels.Hotel{}, errNoSelection
	}
	hotel, ok := controller.selectedHotelLocked()
	if !ok {
		return hotels.Hotel{Name: controller.selected}, nil
	}
	return hotel, nil
}

func (controller *Controller) fail(action string, err error) error {
	controller.logger.Warn("command failed", zap.String("action", action), zap.Error(err))
	controller.notifier.Notify(Notification{
		Level:   LevelError,
		Message: fmt.Sprintf("Could not %s: %s", action, describe(err)),
		Err:     err,
	})
	return err
}

func describe(err error) string {
	switch {
	case errors.Is(err, hotels.ErrValidation):
		return "missing or invalid input"
	case errors.Is(err, hotels.ErrConflict):
		return "it conflicts with the current data"
	case errors.Is(err, hotels.ErrNotFound):
		return "it no longer exists"
	case errors.Is(err, hotels.ErrWriteFailed):
		return "the change was not saved"
	default:
		return strings.TrimSpace(err.Error())
	}
}
