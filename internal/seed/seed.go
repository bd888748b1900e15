package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
)

// ErrInvalidSource indicates that a seed file could not be decoded.
var ErrInvalidSource = errors.New("seed: invalid source")

// Target is the collection the loader writes hotels into.
type Target interface {
	Clear(ctx context.Context) (int, error)
	Commit(ctx context.Context, writes []docstore.Write) error
}

// Options controls how hotels are written.
type Options struct {
	Clear           bool
	OrderByPosition bool
}

// Result summarizes an Apply run.
type Result struct {
	Cleared int
	Written int
}

// LoadFile reads a JSON array of hotels from path.
func LoadFile(path string) ([]hotels.Hotel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseJSON(file)
}

// ParseJSON decodes a JSON array of hotels. Entries without a name and rooms
// without a room number are skipped.
func ParseJSON(reader io.Reader) ([]hotels.Hotel, error) {
	var raw []hotels.Hotel
	if err := json.NewDecoder(reader).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	list := make([]hotels.Hotel, 0, len(raw))
	for _, hotel := range raw {
		hotel.Name = strings.TrimSpace(hotel.Name)
		if hotel.Name == "" {
			continue
		}
		rooms := make([]hotels.Room, 0, len(hotel.Rooms))
		for _, room := range hotel.Rooms {
			room.RoomNumber = strings.TrimSpace(room.RoomNumber)
			if room.RoomNumber == "" {
				continue
			}
			rooms = append(rooms, room)
		}
		hotel.Rooms = rooms
		list = append(list, hotel.Normalized())
	}
	return list, nil
}

// Apply writes every hotel as a document keyed by its name in one batch,
// clearing the collection first when requested.
func Apply(ctx context.Context, target Target, list []hotels.Hotel, options Options) (Result, error) {
	result := Result{}
	if options.Clear {
		cleared, err := target.Clear(ctx)
		if err != nil {
			return result, fmt.Errorf("clear collection: %w", err)
		}
		result.Cleared = cleared
	}

	writes := make([]docstore.Write, 0, len(list))
	for index, hotel := range list {
		document := hotel.Normalized()
		if options.OrderByPosition {
			position := index
			document.Order = &position
		}
		writes = append(writes, docstore.SetWrite(document.Name, document))
	}
	if len(writes) == 0 {
		return result, nil
	}
	if err := target.Commit(ctx, writes); err != nil {
		return result, fmt.Errorf("write hotels: %w", err)
	}
	result.Written = len(writes)
	return result, nil
}
