package hotels

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestNewRoomRequiresNumber(testContext *testing.T) {
	if _, err := NewRoom("   ", "Suite"); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error, got %v", err)
	}

	room, err := NewRoom(" 202 ", "  ")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if room.RoomNumber != "202" {
		testContext.Fatalf("expected trimmed room number, got %q", room.RoomNumber)
	}
	if room.RoomType != nil {
		testContext.Fatalf("expected blank type to be absent")
	}
	if room.Occupants == nil || room.Tags == nil {
		testContext.Fatalf("expected empty, non-nil lists")
	}
}

func TestNewHotelNameBounds(testContext *testing.T) {
	if _, err := NewHotelName(""); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error for empty name")
	}
	if _, err := NewHotelName(strings.Repeat("x", maxIdentifierLength+1)); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error for long name")
	}
	name, err := NewHotelName(" Azalea ")
	if err != nil || name.String() != "Azalea" {
		testContext.Fatalf("expected trimmed hotel name, got %q (%v)", name, err)
	}
}

func TestValidateRoom(testContext *testing.T) {
	room, _ := NewRoom("101", "")
	if err := ValidateRoom(room); err != nil {
		testContext.Fatalf("expected valid room, got %v", err)
	}

	room.Occupants = append(room.Occupants, Occupant{})
	if err := ValidateRoom(room); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error for nameless occupant, got %v", err)
	}

	negative := -1
	invalidLimit := Room{RoomNumber: "5", MaxOccupancy: &negative}
	if err := ValidateRoom(invalidLimit); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error for negative limit, got %v", err)
	}
}

func TestHotelDecodeNormalizesNullLists(testContext *testing.T) {
	raw := `{"name":"Azalea","rooms":[{"room_number":"101","room_type":null,"occupants":null}]}`
	var hotel Hotel
	if err := json.Unmarshal([]byte(raw), &hotel); err != nil {
		testContext.Fatalf("decode failed: %v", err)
	}
	normalized := hotel.Normalized()
	room := normalized.Rooms[0]
	if room.Occupants == nil || room.Tags == nil {
		testContext.Fatalf("expected normalized lists to be non-nil")
	}
	if normalized.Order != nil {
		testContext.Fatalf("expected absent order to stay absent")
	}
}

func TestNormalizedIsDeepCopy(testContext *testing.T) {
	original := Hotel{Name: "Azalea", Rooms: []Room{{RoomNumber: "101", Occupants: []Occupant{{Name: "Priya"}}, Tags: []string{"vip"}}}}
	copied := original.Normalized()
	copied.Rooms[0].Occupants[0].Name = "Changed"
	copied.Rooms[0].Tags[0] = "changed"
	if original.Rooms[0].Occupants[0].Name != "Priya" || original.Rooms[0].Tags[0] != "vip" {
		testContext.Fatalf("expected original to be untouched")
	}
}

func TestRoomTransforms(testContext *testing.T) {
	room, _ := NewRoom("101", "Suite")

	assign, err := AssignOccupant("Priya")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	room = assign(assign(room))
	if len(room.Occupants) != 2 {
		testContext.Fatalf("expected duplicate names to be allowed, got %d", len(room.Occupants))
	}

	room = UnassignOccupant("Priya")(room)
	if len(room.Occupants) != 0 {
		testContext.Fatalf("expected every matching occupant removed, got %v", room.Occupants)
	}

	if _, err := AssignOccupant("  "); !errors.Is(err, ErrValidation) {
		testContext.Fatalf("expected validation error for blank name, got %v", err)
	}

	tag, err := AddTag("VIP")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	room = tag(tag(room))
	if !slices.Equal(room.Tags, []string{"VIP"}) {
		testContext.Fatalf("expected tag set semantics, got %v", room.Tags)
	}
	room = RemoveTag("VIP")(room)
	if len(room.Tags) != 0 {
		testContext.Fatalf("expected tag removed, got %v", room.Tags)
	}
}

func TestOverCapacity(testContext *testing.T) {
	limit := 1
	room := Room{RoomNumber: "101", MaxOccupancy: &limit, Occupants: []Occupant{{Name: "A"}}}
	if room.OverCapacity() {
		testContext.Fatalf("expected room at capacity to be fine")
	}
	room.Occupants = append(room.Occupants, Occupant{Name: "B"})
	if !room.OverCapacity() {
		testContext.Fatalf("expected room over capacity")
	}
	if (Room{RoomNumber: "1", Occupants: []Occupant{{Name: "A"}}}).OverCapacity() {
		testContext.Fatalf("expected rooms without limit never over capacity")
	}
}
