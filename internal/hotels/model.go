package hotels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxIdentifierLength = 190

var (
	// ErrNotFound indicates that the cached snapshot has no record for the requested key.
	ErrNotFound = errors.New("hotels: not found")
	// ErrConflict indicates that the store rejected a write against the current state.
	ErrConflict = errors.New("hotels: conflict")
	// ErrValidation indicates that a required field is missing or malformed.
	ErrValidation = errors.New("hotels: validation failed")
	// ErrWriteFailed indicates that a remote write did not apply.
	ErrWriteFailed = errors.New("hotels: write failed")
	// ErrSubscription indicates that a snapshot feed died and must be re-established.
	ErrSubscription = errors.New("hotels: subscription failed")
)

var roomValidator = validator.New(validator.WithRequiredStructEnabled())

// HotelName represents a validated hotel key.
type HotelName string

// NewHotelName validates raw input and returns a HotelName.
func NewHotelName(rawInput string) (HotelName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty hotel name", ErrValidation)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: hotel name exceeds %d characters", ErrValidation, maxIdentifierLength)
	}
	return HotelName(trimmed), nil
}

// String returns the underlying hotel key.
func (name HotelName) String() string {
	return string(name)
}

// RoomNumber represents a validated room key, unique within one hotel.
type RoomNumber string

// NewRoomNumber validates raw input and returns a RoomNumber.
func NewRoomNumber(rawInput string) (RoomNumber, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty room number", ErrValidation)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: room number exceeds %d characters", ErrValidation, maxIdentifierLength)
	}
	return RoomNumber(trimmed), nil
}

// String returns the underlying room key.
func (number RoomNumber) String() string {
	return string(number)
}

// Occupant is a guest assigned to a room. Identity is the name within one room.
type Occupant struct {
	Name string `json:"name" validate:"required"`
}

// Room is owned by exactly one hotel.
type Room struct {
	RoomNumber   string     `json:"room_number" validate:"required"`
	RoomType     *string    `json:"room_type"`
	Occupants    []Occupant `json:"occupants" validate:"dive"`
	Tags         []string   `json:"tags" validate:"dive,required"`
	MaxOccupancy *int       `json:"max_occupancy,omitempty" validate:"omitempty,gte=0"`
}

// Hotel is the document stored under its name in the hotels collection.
type Hotel struct {
	Name  string `json:"name"`
	Rooms []Room `json:"rooms"`
	Order *int   `json:"order,omitempty"`
}

// NewRoom builds an empty room. A blank room type is stored as absent.
func NewRoom(rawNumber, rawType string) (Room, error) {
	number, err := NewRoomNumber(rawNumber)
	if err != nil {
		return Room{}, err
	}
	room := Room{
		RoomNumber: number.String(),
		Occupants:  []Occupant{},
		Tags:       []string{},
	}
	if roomType := strings.TrimSpace(rawType); roomType != "" {
		room.RoomType = &roomType
	}
	return room, nil
}

// ValidateRoom reports ErrValidation when a required field is missing.
func ValidateRoom(room Room) error {
	if strings.TrimSpace(room.RoomNumber) == "" {
		return fmt.Errorf("%w: empty room number", ErrValidation)
	}
	if err := roomValidator.Struct(room); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// TypeName returns the room type or an empty string when absent.
func (room Room) TypeName() string {
	if room.RoomType == nil {
		return ""
	}
	return *room.RoomType
}

// Normalized returns a copy whose occupant and tag lists are never nil.
func (room Room) Normalized() Room {
	normalized := room
	normalized.Occupants = make([]Occupant, len(room.Occupants))
	copy(normalized.Occupants, room.Occupants)
	normalized.Tags = make([]string, len(room.Tags))
	copy(normalized.Tags, room.Tags)
	if room.RoomType != nil {
		roomType := *room.RoomType
		normalized.RoomType = &roomType
	}
	if room.MaxOccupancy != nil {
		limit := *room.MaxOccupancy
		normalized.MaxOccupancy = &limit
	}
	return normalized
}

// OverCapacity reports whether the room holds more occupants than its advisory limit.
func (room Room) OverCapacity() bool {
	if room.MaxOccupancy == nil {
		return false
	}
	return len(room.Occupants) > *room.MaxOccupancy
}

// Normalized returns a deep copy with every room normalized.
func (hotel Hotel) Normalized() Hotel {
	normalized := Hotel{
		Name:  hotel.Name,
		Rooms: make([]Room, 0, len(hotel.Rooms)),
	}
	if hotel.Order != nil {
		order := *hotel.Order
		normalized.Order = &order
	}
	for _, room := range hotel.Rooms {
		normalized.Rooms = append(normalized.Rooms, room.Normalized())
	}
	return normalized
}

// FindRoom returns the first room with the given number.
func (hotel Hotel) FindRoom(number string) (Room, bool) {
	for _, room := range hotel.Rooms {
		if room.RoomNumber == number {
			return room, true
		}
	}
	return Room{}, false
}

// FindHotel returns the hotel with the given name.
func FindHotel(list []Hotel, name string) (Hotel, bool) {
	for _, hotel := range list {
		if hotel.Name == name {
			return hotel, true
		}
	}
	return Hotel{}, false
}
