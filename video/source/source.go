package source

import (
	"errors"
	"image"
	"time"
)

// ErrDeviceUnavailable is returned when no camera matching the requested
// constraints could be opened, including when access is denied.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// ErrDeviceLost is reported when a live source stops delivering frames.
var ErrDeviceLost = errors.New("camera device lost")

// Frame is a single decoded camera frame in RGBA form.
type Frame struct {
	Img  *image.RGBA
	Time time.Time

	pool     *FramePool
	released bool
}

// Release hands the frame's buffer back to the pool it was allocated from.
// The frame must not be used afterwards.
func (f *Frame) Release() {
	if f.released {
		panic("frame already released")
	}
	f.released = true
	if f.pool != nil {
		f.pool.Release(f.Img)
	}
	f.Img = nil
}

// Clone returns an unpooled deep copy of the frame.
func (f *Frame) Clone() Frame {
	n := Frame{
		Img:  image.NewRGBA(f.Img.Rect),
		Time: f.Time,
	}
	copy(n.Img.Pix, f.Img.Pix)
	return n
}

// NewFrame wraps an image as an unpooled frame.
func NewFrame(img *image.RGBA, t time.Time) Frame {
	return Frame{Img: img, Time: t}
}

// Source defines a stream of frames, such as a camera.
type Source interface {
	// Get returns the channel of frames. Receivers own each frame and must
	// Release it. The channel is closed when the source stops, either through
	// Close or because the device was lost.
	Get() <-chan Frame

	// Size returns the native frame size of the source.
	Size() image.Point

	// Connected returns whether the capture source is considered "live".
	Connected() bool

	// Err returns the error that stopped the source, if any.
	Err() error

	// Close disconnects from the capture source and frees up all resources.
	Close()
}
