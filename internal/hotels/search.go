package hotels

import "strings"

// ResultKind tags a search result.
type ResultKind string

const (
	ResultHotel    ResultKind = "hotel"
	ResultRoom     ResultKind = "room"
	ResultOccupant ResultKind = "occupant"
)

// MatchField records which field produced a result.
type MatchField string

const (
	MatchHotelName    MatchField = "hotel_name"
	MatchRoomNumber   MatchField = "room_number"
	MatchRoomType     MatchField = "room_type"
	MatchTag          MatchField = "tag"
	MatchOccupantName MatchField = "occupant_name"
)

// Result is one entry of a cross-entity search.
type Result struct {
	Kind      ResultKind `json:"type"`
	HotelName string     `json:"hotel_name"`
	Match     MatchField `json:"match"`
	RoomCount int        `json:"room_count,omitempty"`
	Room      *Room      `json:"room,omitempty"`
	Occupant  *Occupant  `json:"occupant,omitempty"`
}

// FilterTerm is the in-hotel search text a result navigates to.
func (result Result) FilterTerm() string {
	switch result.Kind {
	case ResultRoom:
		if result.Room != nil {
			return result.Room.RoomNumber
		}
	case ResultOccupant:
		if result.Occupant != nil {
			return result.Occupant.Name
		}
	}
	return ""
}

// Search scans hotels, rooms and occupants in collection order. A room matched
// by type or tag is emitted once; occupant matches are always emitted.
func Search(list []Hotel, term string) []Result {
	if term == "" {
		return []Result{}
	}
	needle := strings.ToLower(term)
	results := make([]Result, 0)

	for _, hotel := range list {
		if strings.Contains(strings.ToLower(hotel.Name), needle) {
			results = append(results, Result{
				Kind:      ResultHotel,
				HotelName: hotel.Name,
				Match:     MatchHotelName,
				RoomCount: len(hotel.Rooms),
			})
		}

		emitted := make(map[string]struct{})
		for index := range hotel.Rooms {
			room := hotel.Rooms[index]
			emitRoom := func(match MatchField) {
				if _, ok := emitted[room.RoomNumber]; ok {
					return
				}
				emitted[room.RoomNumber] = struct{}{}
				results = append(results, Result{
					Kind:      ResultRoom,
					HotelName: hotel.Name,
					Match:     match,
					Room:      &room,
				})
			}

			if strings.Contains(strings.ToLower(room.RoomNumber), needle) {
				emitRoom(MatchRoomNumber)
			}
			if roomType := room.TypeName(); roomType != "" && strings.Contains(strings.ToLower(roomType), needle) {
				emitRoom(MatchRoomType)
			}
			for _, tag := range room.Tags {
				if strings.Contains(strings.ToLower(tag), needle) {
					emitRoom(MatchTag)
					break
				}
			}
			for occupantIndex := range room.Occupants {
				occupant := room.Occupants[occupantIndex]
				if strings.Contains(strings.ToLower(occupant.Name), needle) {
					results = append(results, Result{
						Kind:      ResultOccupant,
						HotelName: hotel.Name,
						Match:     MatchOccupantName,
						Room:      &room,
						Occupant:  &occupant,
					})
				}
			}
		}
	}
	return results
}
