package seed

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/xuri/excelize/v2"
)

const (
	columnRoom = iota
	columnType
	columnTags
	columnCapacity
	columnOccupant
)

// LoadWorkbook reads hotels from the spreadsheet at path.
func LoadWorkbook(path string) ([]hotels.Hotel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseWorkbook(file)
}

// ParseWorkbook turns every sheet into a hotel named after the sheet. A first
// row holding a "Room" or "Room Number" cell is a header naming the Type,
// Tags and Max Occupancy columns; every other column holds occupants.
// Without a header the first column is the room number and the rest are
// occupants. Repeated room numbers merge into one room.
func ParseWorkbook(reader io.Reader) ([]hotels.Hotel, error) {
	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	defer workbook.Close()

	list := []hotels.Hotel{}
	for _, sheet := range workbook.GetSheetList() {
		name := strings.TrimSpace(sheet)
		if name == "" {
			continue
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		list = append(list, parseSheet(name, rows))
	}
	return list, nil
}

func parseSheet(name string, rows [][]string) hotels.Hotel {
	hotel := hotels.Hotel{Name: name, Rooms: []hotels.Room{}}
	layout, header := detectLayout(rows)
	if header {
		rows = rows[1:]
	}

	for _, row := range rows {
		room := hotels.Room{Occupants: []hotels.Occupant{}, Tags: []string{}}
		for index, raw := range row {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			switch layout(index) {
			case columnRoom:
				room.RoomNumber = value
			case columnType:
				roomType := value
				room.RoomType = &roomType
			case columnTags:
				for _, tag := range strings.Split(value, ",") {
					if tag = strings.TrimSpace(tag); tag != "" && !slices.Contains(room.Tags, tag) {
						room.Tags = append(room.Tags, tag)
					}
				}
			case columnCapacity:
				if limit, err := strconv.ParseFloat(value, 64); err == nil && limit >= 0 {
					capacity := int(limit)
					room.MaxOccupancy = &capacity
				}
			case columnOccupant:
				room.Occupants = append(room.Occupants, hotels.Occupant{Name: value})
			}
		}
		if room.RoomNumber == "" {
			continue
		}
		hotel.Rooms = mergeRoom(hotel.Rooms, room)
	}
	return hotel
}

func detectLayout(rows [][]string) (func(int) int, bool) {
	positional := func(index int) int {
		if index == 0 {
			return columnRoom
		}
		return columnOccupant
	}
	if len(rows) == 0 {
		return positional, false
	}

	columns := make(map[int]int)
	header := false
	for index, cell := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "room", "room number", "room no":
			columns[index] = columnRoom
			header = true
		case "type", "room type":
			columns[index] = columnType
		case "tags", "tag":
			columns[index] = columnTags
		case "max occupancy", "capacity":
			columns[index] = columnCapacity
		}
	}
	if !header {
		return positional, false
	}
	return func(index int) int {
		if kind, ok := columns[index]; ok {
			return kind
		}
		return columnOccupant
	}, true
}

func mergeRoom(rooms []hotels.Room, room hotels.Room) []hotels.Room {
	index := slices.IndexFunc(rooms, func(existing hotels.Room) bool {
		return existing.RoomNumber == room.RoomNumber
	})
	if index < 0 {
		return append(rooms, room)
	}
	existing := &rooms[index]
	existing.Occupants = append(existing.Occupants, room.Occupants...)
	for _, tag := range room.Tags {
		if !slices.Contains(existing.Tags, tag) {
			existing.Tags = append(existing.Tags, tag)
		}
	}
	if existing.RoomType == nil {
		existing.RoomType = room.RoomType
	}
	if existing.MaxOccupancy == nil {
		existing.MaxOccupancy = room.MaxOccupancy
	}
	return rooms
}
