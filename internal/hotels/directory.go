package hotels

import (
	"fmt"
	"slices"
	"strings"
)

// SortedHotels returns a stably sorted copy. Two hotels compare by display order
// only when both carry one; any other pair compares by name.
func SortedHotels(list []Hotel) []Hotel {
	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, compareHotels)
	return sorted
}

func compareHotels(left, right Hotel) int {
	if left.Order != nil && right.Order != nil {
		return *left.Order - *right.Order
	}
	return strings.Compare(left.Name, right.Name)
}

// SelectDefault picks the first sorted hotel when nothing is selected yet.
// A selection that no longer resolves is kept as is.
func SelectDefault(list []Hotel, current string) string {
	if current != "" || len(list) == 0 {
		return current
	}
	return SortedHotels(list)[0].Name
}

// Reorder returns hotels in the order of names. Hotels missing from names keep
// their sorted position after the named ones.
func Reorder(list []Hotel, names []string) ([]Hotel, error) {
	byName := make(map[string]Hotel, len(list))
	for _, hotel := range list {
		byName[hotel.Name] = hotel
	}

	ordered := make([]Hotel, 0, len(list))
	placed := make(map[string]struct{}, len(names))
	for _, name := range names {
		hotel, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: hotel %q", ErrNotFound, name)
		}
		if _, dup := placed[name]; dup {
			return nil, fmt.Errorf("%w: hotel %q listed twice", ErrValidation, name)
		}
		placed[name] = struct{}{}
		ordered = append(ordered, hotel)
	}
	for _, hotel := range SortedHotels(list) {
		if _, ok := placed[hotel.Name]; ok {
			continue
		}
		ordered = append(ordered, hotel)
	}
	return ordered, nil
}
