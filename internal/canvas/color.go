package canvas

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// TransparentHex is the fully transparent hex literal accepted as a
// transparent background.
const TransparentHex = "#00000000"

// IsTransparent reports whether a background value asks for an alpha canvas.
func IsTransparent(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "transparent") || strings.EqualFold(s, TransparentHex)
}

// ParseColor accepts #RGB, #RGBA, #RRGGBB, #RRGGBBAA, CSS color names and
// "transparent".
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return color.NRGBA{}, fmt.Errorf("empty color")
	}
	if v == "transparent" {
		return color.NRGBA{}, nil
	}

	if strings.HasPrefix(v, "#") {
		return parseHex(v[1:], s)
	}

	if c, ok := colornames.Map[v]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
}

func parseHex(h, orig string) (color.NRGBA, error) {
	switch len(h) {
	case 3, 4:
		// Expand shorthand: "f0a" -> "ff00aa".
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	case 6, 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", orig)
	}

	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", orig)
	}

	if len(h) == 6 {
		return color.NRGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}
