package collage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// ErrBackground is returned for a background that is neither exactly a color
// nor exactly a pattern.
var ErrBackground = errors.New("background must be a color or a pattern")

// Background is either a flat color or a tileable pattern image, never both.
type Background struct {
	Color   color.Color
	Pattern image.Image
}

func ColorBackground(c color.Color) Background {
	return Background{Color: c}
}

func PatternBackground(img image.Image) Background {
	return Background{Pattern: img}
}

// IsPattern reports whether the background is a pattern image.
func (b Background) IsPattern() bool {
	return b.Pattern != nil
}

func (b Background) validate() error {
	if (b.Color == nil) == (b.Pattern == nil) {
		return ErrBackground
	}
	if b.Pattern != nil && b.Pattern.Bounds().Empty() {
		return fmt.Errorf("%w: empty pattern", ErrBackground)
	}
	return nil
}

func (b Background) paint(dst *image.RGBA) {
	if b.Pattern == nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(b.Color), image.Point{}, draw.Src)
		return
	}
	// Repeat the tile across the canvas rather than stretching it.
	pb := b.Pattern.Bounds()
	for y := dst.Rect.Min.Y; y < dst.Rect.Max.Y; y += pb.Dy() {
		for x := dst.Rect.Min.X; x < dst.Rect.Max.X; x += pb.Dx() {
			r := image.Rect(x, y, x+pb.Dx(), y+pb.Dy())
			draw.Draw(dst, r, b.Pattern, pb.Min, draw.Src)
		}
	}
}

// ParseColor parses "#rgb", "#rrggbb", "#rrggbbaa" and "rgb(r, g, b)".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[4:len(s)-1], ",")
		if len(parts) != 3 {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
		}
		var c [3]uint8
		for i, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return color.NRGBA{}, fmt.Errorf("invalid color %q: %v", s, err)
			}
			c[i] = uint8(v)
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 0xff}, nil
	}

	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %v", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
