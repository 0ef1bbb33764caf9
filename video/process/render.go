package process

import (
	"image"

	"booth/video/source"
)

// Settings controls how a frame is rendered.
type Settings struct {
	Mirrored   bool
	Filter     Filter
	FacingMode source.FacingMode
}

// DefaultSettings mirror a user-facing camera, like a looking glass.
func DefaultSettings() Settings {
	return Settings{
		Mirrored:   true,
		Filter:     None,
		FacingMode: source.FacingUser,
	}
}

// Flip reports whether frames are flipped horizontally. Only user-facing
// cameras are mirrored.
func (s Settings) Flip() bool {
	return s.Mirrored && s.FacingMode == source.FacingUser
}

// Render draws src into dst, flipped horizontally when the settings ask for
// it, and then applies the filter. dst must have the same size as src.
func Render(dst, src *image.RGBA, s Settings) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		panic("process: render size mismatch")
	}
	rowLen := w * 4
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+rowLen]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+rowLen]
		if !s.Flip() {
			copy(drow, srow)
			continue
		}
		for x := 0; x < w; x++ {
			copy(drow[x*4:x*4+4], srow[(w-1-x)*4:(w-x)*4])
		}
	}
	Apply(dst, s.Filter)
}

// RenderNew is Render into a freshly allocated image.
func RenderNew(src *image.RGBA, s Settings) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: src.Rect.Size()})
	Render(dst, src, s)
	return dst
}
