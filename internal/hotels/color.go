package hotels

import (
	"fmt"
	"math"
	"unicode/utf16"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	defaultColorKey = "default"
	colorSaturation = 0.70
	colorLightness  = 0.90
	colorHueDegrees = 360
)

// TypeHue hashes key into a hue in [0, 360). The hash is the 32-bit
// "h = c + (h<<5) - h" over UTF-16 code units used by the web client.
func TypeHue(key string) int {
	hash := 0.0
	for _, unit := range utf16.Encode([]rune(key)) {
		shifted := toInt32(hash) << 5
		hash = float64(unit) + (float64(shifted) - hash)
	}
	return int(math.Abs(math.Mod(hash, colorHueDegrees)))
}

func toInt32(value float64) int32 {
	return int32(uint32(int64(math.Mod(math.Trunc(value), 1<<32))))
}

// RoomColor returns the pastel CSS colour for the room's type.
func RoomColor(room Room) string {
	return fmt.Sprintf("hsl(%d, 70%%, 90%%)", TypeHue(colorKey(room)))
}

// RoomColorHex returns RoomColor as an sRGB hex string for terminals.
func RoomColorHex(room Room) string {
	return colorful.Hsl(float64(TypeHue(colorKey(room))), colorSaturation, colorLightness).Clamped().Hex()
}

func colorKey(room Room) string {
	if roomType := room.TypeName(); roomType != "" {
		return roomType
	}
	return defaultColorKey
}
