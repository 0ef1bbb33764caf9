package video

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"booth/store"
	"booth/video/process"
	"booth/video/source"
)

// fakeSource is a Source fed by the test.
type fakeSource struct {
	size image.Point

	l      sync.Mutex
	c      chan source.Frame
	closed bool
	err    error
}

func newFakeSource(w, h int) *fakeSource {
	return &fakeSource{size: image.Pt(w, h), c: make(chan source.Frame, 16)}
}

func (s *fakeSource) push(img *image.RGBA) {
	s.l.Lock()
	defer s.l.Unlock()
	if s.closed {
		return
	}
	s.c <- source.NewFrame(img, time.Now())
}

func (s *fakeSource) lose(err error) {
	s.l.Lock()
	defer s.l.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.c)
}

func (s *fakeSource) isClosed() bool {
	s.l.Lock()
	defer s.l.Unlock()
	return s.closed
}

func (s *fakeSource) Get() <-chan source.Frame { return s.c }
func (s *fakeSource) Size() image.Point        { return s.size }
func (s *fakeSource) Connected() bool          { return !s.isClosed() }

func (s *fakeSource) Err() error {
	s.l.Lock()
	defer s.l.Unlock()
	return s.err
}

func (s *fakeSource) Close() {
	s.l.Lock()
	defer s.l.Unlock()
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}

// stripe returns a w x 1 image whose pixel x has red channel x*10.
func stripe(w int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, 1))
	for x := 0; x < w; x++ {
		img.SetRGBA(x, 0, color.RGBA{uint8(x * 10), 50, 100, 255})
	}
	return img
}

type fakeTicker struct {
	c chan time.Time

	l       sync.Mutex
	stopped bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.l.Lock()
	defer t.l.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.l.Lock()
	defer t.l.Unlock()
	return t.stopped
}

type fakeClock struct {
	l       sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.l.Lock()
	defer c.l.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) last() *fakeTicker {
	c.l.Lock()
	defer c.l.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) count() int {
	c.l.Lock()
	defer c.l.Unlock()
	return len(c.tickers)
}

type fakeGrabber struct {
	l        sync.Mutex
	ready    bool
	err      error
	settings process.Settings
	snaps    int
}

func (g *fakeGrabber) Ready() bool {
	g.l.Lock()
	defer g.l.Unlock()
	return g.ready
}

func (g *fakeGrabber) Snapshot() (source.Frame, error) {
	g.l.Lock()
	defer g.l.Unlock()
	if g.err != nil {
		return source.Frame{}, g.err
	}
	g.snaps++
	return source.NewFrame(stripe(8), time.Now()), nil
}

func (g *fakeGrabber) Settings() process.Settings {
	g.l.Lock()
	defer g.l.Unlock()
	return g.settings
}

func (g *fakeGrabber) setErr(err error) {
	g.l.Lock()
	defer g.l.Unlock()
	g.err = err
}

type fakeStore struct {
	l      sync.Mutex
	writes [][][]byte
	status store.Status
	saved  int
	err    error
}

func (s *fakeStore) Write(ctx context.Context, photos [][]byte) (store.Result, error) {
	s.l.Lock()
	defer s.l.Unlock()
	if s.err != nil {
		return store.Result{}, s.err
	}
	s.writes = append(s.writes, photos)
	status := s.status
	if status == "" {
		status = store.StatusOK
	}
	saved := len(photos)
	if s.saved > 0 {
		saved = s.saved
	}
	return store.Result{Status: status, Saved: saved}, nil
}

// eventLog records session events.
type eventLog struct {
	l      sync.Mutex
	events []Event
}

func (e *eventLog) SessionEvent(ev Event) {
	e.l.Lock()
	defer e.l.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) kinds() []EventKind {
	e.l.Lock()
	defer e.l.Unlock()
	var out []EventKind
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}
