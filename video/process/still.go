package process

import (
	"bytes"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// StillOptions control how captured photos are encoded.
type StillOptions struct {
	// MaxEdge caps the longer side of the image in pixels. Zero disables it.
	MaxEdge int
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// DefaultStill keeps stills small enough that four of them fit comfortably
// in the photo store.
var DefaultStill = StillOptions{MaxEdge: 1280, Quality: 70}

// Fit scales img down so that its longer edge is at most maxEdge, keeping
// the aspect ratio. Images already small enough are returned unchanged.
func Fit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return img
	}
	nw, nh := maxEdge, maxEdge
	if w >= h {
		nh = max(1, h*maxEdge/w)
	} else {
		nw = max(1, w*maxEdge/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// EncodeStill fits and JPEG-encodes a captured frame.
func EncodeStill(img image.Image, o StillOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(img, o.MaxEdge), &jpeg.Options{Quality: o.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reencode decodes an encoded still and encodes it again with o.
func Reencode(data []byte, o StillOptions) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return EncodeStill(img, o)
}
