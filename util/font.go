package util

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

var (
	fontOnce sync.Once
	fontBold *opentype.Font
	fontErr  error
)

// NewFace returns a new bold face of the given pixel size. Faces are not
// safe for concurrent use, so callers get their own.
func NewFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		fontBold, fontErr = opentype.Parse(gobold.TTF)
	})
	if fontErr != nil {
		return nil, fontErr
	}
	return opentype.NewFace(fontBold, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// MeasureString returns the advance width of s in whole pixels, rounded up.
func MeasureString(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}
