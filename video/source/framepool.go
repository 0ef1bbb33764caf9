package source

import (
	"image"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxPoolAllocations bounds the buffers a pool hands out before it starts
// complaining. A healthy pipeline holds a handful of frames at once.
const maxPoolAllocations = 64

// FramePool recycles RGBA buffers of a single size.
type FramePool struct {
	size image.Point

	new   chan chan *image.RGBA
	free  chan *image.RGBA
	close chan struct{}

	allocated int
	available []*image.RGBA
	warned    bool
}

func NewFramePool(size image.Point) *FramePool {
	p := &FramePool{
		size:  size,
		new:   make(chan chan *image.RGBA),
		free:  make(chan *image.RGBA),
		close: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-p.close:
				p.available = nil
				return
			case m := <-p.free:
				if m.Rect.Size() != p.size {
					p.allocated--
				} else {
					p.available = append(p.available, m)
				}
			case r := <-p.new:
				var m *image.RGBA
				if len(p.available) > 0 {
					m, p.available = p.available[0], p.available[1:]
				} else {
					m = image.NewRGBA(image.Rectangle{Max: p.size})
					p.allocated++
					if p.allocated > maxPoolAllocations && !p.warned {
						log.Warnf("FramePool holds %d buffers. Perhaps a Frame isn't being released?", p.allocated)
						p.warned = true
					}
				}
				r <- m
			}
		}
	}()
	return p
}

// Size returns the dimensions of the buffers handed out by the pool.
func (p *FramePool) Size() image.Point {
	return p.size
}

// New returns a pooled frame stamped with t.
func (p *FramePool) New(t time.Time) Frame {
	r := make(chan *image.RGBA)
	p.new <- r
	return Frame{Img: <-r, Time: t, pool: p}
}

// Release returns a buffer to the pool. Releasing after Close is a no-op.
func (p *FramePool) Release(m *image.RGBA) {
	select {
	case p.free <- m:
	case <-p.close:
	}
}

// Close drops all pooled buffers. New must not be called afterwards.
func (p *FramePool) Close() {
	close(p.close)
}
