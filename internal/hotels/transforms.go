package hotels

import (
	"fmt"
	"slices"
	"strings"
)

// RoomTransform derives a new room value from the cached one.
type RoomTransform func(Room) Room

// AssignOccupant appends an occupant to the room.
func AssignOccupant(rawName string) (RoomTransform, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty occupant name", ErrValidation)
	}
	return func(room Room) Room {
		updated := room.Normalized()
		updated.Occupants = append(updated.Occupants, Occupant{Name: name})
		return updated
	}, nil
}

// UnassignOccupant removes every occupant whose name equals name exactly.
func UnassignOccupant(name string) RoomTransform {
	return func(room Room) Room {
		updated := room.Normalized()
		updated.Occupants = slices.DeleteFunc(updated.Occupants, func(occupant Occupant) bool {
			return occupant.Name == name
		})
		return updated
	}
}

// AddTag adds tag to the room's tag set.
func AddTag(rawTag string) (RoomTransform, error) {
	tag := strings.TrimSpace(rawTag)
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrValidation)
	}
	return func(room Room) Room {
		updated := room.Normalized()
		if !slices.Contains(updated.Tags, tag) {
			updated.Tags = append(updated.Tags, tag)
		}
		return updated
	}, nil
}

// RemoveTag drops tag from the room's tag set.
func RemoveTag(tag string) RoomTransform {
	return func(room Room) Room {
		updated := room.Normalized()
		updated.Tags = slices.DeleteFunc(updated.Tags, func(existing string) bool {
			return existing == tag
		})
		return updated
	}
}
