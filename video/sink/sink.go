package sink

import (
	"booth/video/source"
)

// Sink defines a destination for a stream of frames, such as a preview
// window or a network stream.
type Sink interface {
	// Put hands a frame to the sink. The caller keeps ownership: the sink must
	// not modify the frame nor hold references to its pixels after returning.
	Put(input source.Frame)

	// Close should be called to finalize the Sink.
	Close()
}

// Func adapts a function to the Sink interface.
type Func func(input source.Frame)

func (f Func) Put(input source.Frame) { f(input) }
func (f Func) Close()                 {}
