package hotels

import (
	"strings"
	"testing"
)

func TestTypeHueMatchesWebClient(testContext *testing.T) {
	cases := map[string]int{
		"Suite":   192,
		"default": 345,
		"Deluxe":  255,
		"Standard Room with a very long name to overflow": 259,
	}
	for key, expected := range cases {
		if hue := TypeHue(key); hue != expected {
			testContext.Fatalf("key %q: expected hue %d, got %d", key, expected, hue)
		}
	}
}

func TestRoomColorDefaultsWithoutType(testContext *testing.T) {
	untyped := Room{RoomNumber: "1"}
	if color := RoomColor(untyped); color != "hsl(345, 70%, 90%)" {
		testContext.Fatalf("unexpected default colour %q", color)
	}
	typed := Room{RoomNumber: "2", RoomType: stringPointer("Suite")}
	if color := RoomColor(typed); color != "hsl(192, 70%, 90%)" {
		testContext.Fatalf("unexpected suite colour %q", color)
	}
	if hex := RoomColorHex(typed); !strings.HasPrefix(hex, "#") || len(hex) != 7 {
		testContext.Fatalf("unexpected hex colour %q", hex)
	}
}
