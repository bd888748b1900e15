package hotels

import (
	"cmp"
	"errors"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// AllTypes is the room-type filter sentinel that matches every room.
const AllTypes = "All"

// SortOrder selects ascending or descending room order.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ParseSortOrder maps user input to a SortOrder, defaulting to ascending.
func ParseSortOrder(value string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(value), string(SortDescending)) {
		return SortDescending
	}
	return SortAscending
}

// Toggle flips between ascending and descending.
func (order SortOrder) Toggle() SortOrder {
	if order == SortDescending {
		return SortAscending
	}
	return SortDescending
}

// Filter keeps rooms whose number, any occupant name, or any tag contains term
// case-insensitively, restricted to roomType unless it is AllTypes.
func Filter(rooms []Room, term, roomType string) []Room {
	needle := strings.ToLower(term)
	result := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		if !roomMatchesTerm(room, needle) {
			continue
		}
		if roomType != AllTypes && room.TypeName() != roomType {
			continue
		}
		result = append(result, room)
	}
	return result
}

func roomMatchesTerm(room Room, needle string) bool {
	if strings.Contains(strings.ToLower(room.RoomNumber), needle) {
		return true
	}
	for _, occupant := range room.Occupants {
		if strings.Contains(strings.ToLower(occupant.Name), needle) {
			return true
		}
	}
	for _, tag := range room.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// Sort returns a stably sorted copy of rooms. Numbers that both parse as floats
// compare numerically; anything else uses numeric-aware collation.
func Sort(rooms []Room, order SortOrder) []Room {
	sorted := slices.Clone(rooms)
	collator := collate.New(language.Und, collate.Numeric)
	slices.SortStableFunc(sorted, func(left, right Room) int {
		result := compareRoomNumbers(collator, left.RoomNumber, right.RoomNumber)
		if order == SortDescending {
			return -result
		}
		return result
	})
	return sorted
}

func compareRoomNumbers(collator *collate.Collator, left, right string) int {
	leftValue, leftOK := leadingFloat(left)
	rightValue, rightOK := leadingFloat(right)
	if leftOK && rightOK {
		return cmp.Compare(leftValue, rightValue)
	}
	return collator.CompareString(left, right)
}

var leadingFloatPattern = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// leadingFloat parses the longest decimal prefix of value, so "12B" reads as 12.
func leadingFloat(value string) (float64, bool) {
	match := leadingFloatPattern.FindString(strings.TrimLeft(value, " \t\n\r\v\f"))
	if match == "" {
		return 0, false
	}
	if strings.HasSuffix(match, "Infinity") {
		if strings.HasPrefix(match, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	parsed, err := strconv.ParseFloat(match, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return parsed, true
}

// DistinctTypes lists AllTypes followed by the sorted set of non-empty room types.
func DistinctTypes(rooms []Room) []string {
	seen := make(map[string]struct{})
	types := make([]string, 0)
	for _, room := range rooms {
		roomType := room.TypeName()
		if roomType == "" {
			continue
		}
		if _, ok := seen[roomType]; ok {
			continue
		}
		seen[roomType] = struct{}{}
		types = append(types, roomType)
	}
	sort.Strings(types)
	return append([]string{AllTypes}, types...)
}
