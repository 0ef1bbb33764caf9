package process

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Filter is a color filter applied to rendered frames.
type Filter string

const (
	None      Filter = "none"
	Grayscale Filter = "grayscale"
	Sepia     Filter = "sepia"
	Vintage   Filter = "vintage"
)

// Filters lists every supported filter in display order.
var Filters = []Filter{None, Grayscale, Sepia, Vintage}

// ParseFilter maps a filter name to a Filter. The empty string is None.
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return None, nil
	}
	for _, k := range Filters {
		if f == k {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Warm overlay used by the vintage filter.
var (
	vintageTint    = [3]float64{255, 210, 170}
	vintageOpacity = 0.3
)

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

// Apply runs the filter over every pixel of img in place. Alpha is never
// touched.
func Apply(img *image.RGBA, f Filter) {
	var px func(p []uint8)
	switch f {
	case Grayscale:
		px = grayscale
	case Sepia:
		px = sepia
	case Vintage:
		px = vintage
	default:
		return
	}
	w := img.Rect.Dx() * 4
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := 0; x < w; x += 4 {
			px(row[x : x+3 : x+3])
		}
	}
}

func grayscale(p []uint8) {
	avg := clamp8(float64(int(p[0])+int(p[1])+int(p[2])) / 3)
	p[0], p[1], p[2] = avg, avg, avg
}

func sepia(p []uint8) {
	r, g, b := float64(p[0]), float64(p[1]), float64(p[2])
	p[0] = clamp8(math.Min(255, 0.393*r+0.769*g+0.189*b))
	p[1] = clamp8(math.Min(255, 0.349*r+0.686*g+0.168*b))
	p[2] = clamp8(math.Min(255, 0.272*r+0.534*g+0.131*b))
}

// vintage composites the tint over the pixel with a multiply blend.
func vintage(p []uint8) {
	for i := 0; i < 3; i++ {
		c := float64(p[i])
		multiplied := c * vintageTint[i] / 255
		p[i] = clamp8(c*(1-vintageOpacity) + multiplied*vintageOpacity)
	}
}
