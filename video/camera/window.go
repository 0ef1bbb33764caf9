package camera

import (
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"booth/video/source"
)

// Window shows frames in a local OpenCV window, for running the booth as a
// kiosk without a browser. It implements sink.Sink.
type Window struct {
	window  *gocv.Window
	sizeSet bool
}

func NewWindow(name string) *Window {
	return &Window{
		window: gocv.NewWindow(name),
	}
}

func (w *Window) Put(input source.Frame) {
	m, err := gocv.ImageToMatRGB(input.Img)
	if err != nil {
		log.Errorf("Unable to convert frame for window: %v", err)
		return
	}
	defer m.Close()
	if !w.sizeSet {
		w.window.ResizeWindow(m.Cols(), m.Rows())
		w.sizeSet = true
	}
	w.window.IMShow(m)
	w.window.WaitKey(1)
}

func (w *Window) Close() {
	w.window.Close()
}
