package collage

import (
	"image"
	"image/draw"

	"golang.org/x/image/vector"
)

// roundedRect returns a coverage mask of size w x h holding a rectangle with
// quadratic corners of the given radius.
func roundedRect(w, h int, radius float32) *image.Alpha {
	if m := float32(min(w, h)) / 2; radius > m {
		radius = m
	}
	x1, y1 := float32(w), float32(h)

	z := vector.NewRasterizer(w, h)
	z.MoveTo(radius, 0)
	z.LineTo(x1-radius, 0)
	z.QuadTo(x1, 0, x1, radius)
	z.LineTo(x1, y1-radius)
	z.QuadTo(x1, y1, x1-radius, y1)
	z.LineTo(radius, y1)
	z.QuadTo(0, y1, 0, y1-radius)
	z.LineTo(0, radius)
	z.QuadTo(0, 0, radius, 0)
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// fillRounded paints src over r in dst, clipped to a rounded rectangle.
func fillRounded(dst draw.Image, r image.Rectangle, radius float32, src image.Image) {
	mask := roundedRect(r.Dx(), r.Dy(), radius)
	draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
}
