package camera

import (
	"image"
)

// bgrToRGBA copies packed 8-bit BGR (or BGRA when channels is 4) pixel data
// into dst, which must already have the frame's dimensions.
func bgrToRGBA(dst *image.RGBA, b []byte, channels int) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		src := b[y*w*channels:]
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			s := src[x*channels:]
			d := row[x*4 : x*4+4 : x*4+4]
			switch channels {
			case 1:
				d[0], d[1], d[2] = s[0], s[0], s[0]
			default:
				d[0], d[1], d[2] = s[2], s[1], s[0]
			}
			d[3] = 0xff
		}
	}
}
