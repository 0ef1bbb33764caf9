package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"booth/metrics"
	"booth/store"
	"booth/video/process"
	"booth/video/source"
)

const (
	// MaxPhotos is the size of a complete capture session.
	MaxPhotos = 4
	// CountdownStart is where each countdown begins.
	CountdownStart = 3
	// TickInterval is the countdown cadence.
	TickInterval = time.Second
)

var (
	// ErrNotReady is returned when capture is requested without a live camera.
	ErrNotReady = errors.New("camera not ready")
	// ErrSessionFull is returned when starting a countdown on a full session.
	ErrSessionFull = errors.New("session already holds all photos")
	// ErrNotFull is returned when finishing a session that is not complete.
	ErrNotFull = errors.New("session is not complete")
	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("controller closed")
	// ErrCameraStopped aborts a countdown whose camera was switched or closed.
	ErrCameraStopped = errors.New("camera stopped")
)

// Phase is the state of the capture state machine.
type Phase string

const (
	Idle      Phase = "idle"
	Counting  Phase = "counting"
	Capturing Phase = "capturing"
	Full      Phase = "full"
)

// Photo is one captured still. Photos are never modified once created.
type Photo struct {
	Index int
	JPEG  []byte
	Time  time.Time
}

// DataURI renders the photo in data-URI form.
func (p Photo) DataURI() string {
	return store.DataURI(p.JPEG)
}

// Grabber provides frames to capture from; *Camera implements it.
type Grabber interface {
	Ready() bool
	Snapshot() (source.Frame, error)
	Settings() process.Settings
}

// PhotoWriter persists a finished photo set; *store.PhotoStore implements it.
type PhotoWriter interface {
	Write(ctx context.Context, photos [][]byte) (store.Result, error)
}

// Ticker and Clock abstract time.Ticker.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
func (t realTicker) Chan() <-chan time.Time        { return t.t.C }
func (t realTicker) Stop()                         { t.t.Stop() }

type ControllerOptions struct {
	Grabber Grabber
	Store   PhotoWriter
	Still   process.StillOptions

	// Tick defaults to TickInterval, Clock to the wall clock.
	Tick  time.Duration
	Clock Clock

	Listeners []Listener
}

// SessionState is a snapshot of the controller.
type SessionState struct {
	ID        string
	Phase     Phase
	Photos    int
	Remaining *int `json:",omitempty"`
	Settings  process.Settings
}

// FinishResult describes what was persisted by Finish.
type FinishResult struct {
	Session string
	Result  store.Result
	Saved   int
}

type finishReq struct {
	ctx context.Context
	c   chan finishResp
}

type abortReq struct {
	reason error
	c      chan bool
}

type finishResp struct {
	res FinishResult
	err error
}

// Controller runs the timed capture state machine:
// Idle -> Counting -> (Capturing -> Counting)* -> Full.
// All transitions happen on one goroutine; State reads a published snapshot.
type Controller struct {
	opts ControllerOptions

	start   chan chan error
	redo    chan chan bool
	abort   chan abortReq
	finish  chan finishReq
	barrier chan chan bool
	close   chan chan bool
	done    chan struct{}

	l         sync.Mutex
	id        string
	phase     Phase
	photos    []Photo
	remaining int
}

func NewController(o ControllerOptions) *Controller {
	if o.Tick == 0 {
		o.Tick = TickInterval
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Still.Quality == 0 {
		o.Still = process.DefaultStill
	}
	c := &Controller{
		opts:    o,
		start:   make(chan chan error),
		redo:    make(chan chan bool),
		abort:   make(chan abortReq),
		finish:  make(chan finishReq),
		barrier: make(chan chan bool),
		close:   make(chan chan bool),
		done:    make(chan struct{}),
		id:      uuid.NewString(),
		phase:   Idle,
	}
	go c.loop()
	return c
}

func (c *Controller) loop() {
	var ticker Ticker
	var tick <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
		}
		ticker = nil
		tick = nil
	}

	for {
		select {
		case r := <-c.start:
			r <- c.handleStart(func() {
				ticker = c.opts.Clock.NewTicker(c.opts.Tick)
				tick = ticker.Chan()
			})

		case <-tick:
			if !c.handleTick() {
				stopTicker()
			}

		case r := <-c.redo:
			stopTicker()
			c.handleRedo()
			r <- true

		case r := <-c.abort:
			if c.handleAbort(r.reason) {
				stopTicker()
			}
			r.c <- true

		case r := <-c.finish:
			res, err := c.handleFinish(r.ctx)
			r.c <- finishResp{res, err}

		case r := <-c.barrier:
			r <- true

		case r := <-c.close:
			stopTicker()
			close(c.done)
			r <- true
			return
		}
	}
}

func (c *Controller) handleStart(startTicker func()) error {
	// The loop goroutine is the only writer, so the phase cannot change
	// between these checks. The grabber is queried without holding c.l.
	c.l.Lock()
	phase := c.phase
	c.l.Unlock()
	switch phase {
	case Counting, Capturing:
		// Already running; a second countdown would overlap.
		return nil
	case Full:
		return ErrSessionFull
	}
	if c.opts.Grabber == nil || !c.opts.Grabber.Ready() {
		return ErrNotReady
	}

	c.l.Lock()
	c.photos = nil
	c.phase = Counting
	c.remaining = CountdownStart
	ev := c.eventLocked(EventStarted)
	c.l.Unlock()

	startTicker()
	log.Infof("Session %s: countdown started", ev.Session)
	c.emit(ev)
	return nil
}

// handleTick advances the countdown and reports whether the ticker should
// keep running.
func (c *Controller) handleTick() bool {
	c.l.Lock()
	if c.phase != Counting {
		c.l.Unlock()
		return false
	}
	c.remaining--
	if c.remaining > 0 {
		ev := c.eventLocked(EventTick)
		c.l.Unlock()
		c.emit(ev)
		return true
	}
	c.phase = Capturing
	c.l.Unlock()

	photo, err := c.capture()

	if err != nil {
		c.handleAbort(fmt.Errorf("capture failed: %w", err))
		return false
	}

	c.l.Lock()
	photo.Index = len(c.photos)
	c.photos = append(c.photos, photo)
	metrics.Captures.Inc()
	captured := c.eventLocked(EventCaptured)

	var next Event
	keep := len(c.photos) < MaxPhotos
	if keep {
		c.phase = Counting
		c.remaining = CountdownStart
		next = c.eventLocked(EventTick)
	} else {
		c.phase = Full
		c.remaining = 0
		next = c.eventLocked(EventFull)
	}
	c.l.Unlock()

	log.Infof("Session %s: captured photo %d/%d", captured.Session, captured.Photos, MaxPhotos)
	c.emit(captured)
	c.emit(next)
	return keep
}

// capture grabs the latest frame and renders it once with the session's
// mirror and filter settings.
func (c *Controller) capture() (Photo, error) {
	f, err := c.opts.Grabber.Snapshot()
	if err != nil {
		return Photo{}, err
	}
	img := process.RenderNew(f.Img, c.opts.Grabber.Settings())
	data, err := process.EncodeStill(img, c.opts.Still)
	if err != nil {
		return Photo{}, fmt.Errorf("encoding photo: %w", err)
	}
	return Photo{JPEG: data, Time: f.Time}, nil
}

// handleAbort drops a running session back to Idle, discarding its photos,
// and reports whether a countdown was cancelled. Idle and Full sessions are
// left alone.
func (c *Controller) handleAbort(reason error) bool {
	c.l.Lock()
	if c.phase != Counting && c.phase != Capturing {
		c.l.Unlock()
		return false
	}
	c.photos = nil
	c.phase = Idle
	c.remaining = 0
	ev := c.eventLocked(EventError)
	ev.Error = reason.Error()
	c.l.Unlock()

	log.Errorf("Session %s: countdown aborted: %v", ev.Session, reason)
	metrics.Sessions.WithLabelValues("aborted").Inc()
	c.emit(ev)
	return true
}

func (c *Controller) handleRedo() {
	c.l.Lock()
	c.photos = nil
	c.phase = Idle
	c.remaining = 0
	ev := c.eventLocked(EventRedo)
	c.l.Unlock()
	metrics.Sessions.WithLabelValues("redo").Inc()
	log.Infof("Session %s: redo", ev.Session)
	c.emit(ev)
}

func (c *Controller) handleFinish(ctx context.Context) (FinishResult, error) {
	c.l.Lock()
	if c.phase != Full {
		c.l.Unlock()
		return FinishResult{}, ErrNotFull
	}
	id := c.id
	photos := make([][]byte, len(c.photos))
	for i, p := range c.photos {
		photos[i] = p.JPEG
	}
	c.l.Unlock()

	if c.opts.Store == nil {
		return FinishResult{}, errors.New("no photo store configured")
	}
	res, err := c.opts.Store.Write(ctx, photos)
	if err != nil {
		log.Errorf("Session %s: storing photos failed: %v", id, err)
		return FinishResult{}, err
	}

	c.l.Lock()
	ev := c.eventLocked(EventFinished)
	ev.Result = string(res.Status)
	ev.Photos = res.Saved
	// The finished session is handed off; a fresh one begins.
	c.id = uuid.NewString()
	c.photos = nil
	c.phase = Idle
	c.l.Unlock()

	metrics.Sessions.WithLabelValues("finished").Inc()
	log.Infof("Session %s: finished, stored %d photos (%s)", id, res.Saved, res.Status)
	c.emit(ev)
	return FinishResult{Session: id, Result: res, Saved: res.Saved}, nil
}

func (c *Controller) eventLocked(kind EventKind) Event {
	ev := Event{
		Kind:    kind,
		Session: c.id,
		Phase:   c.phase,
		Photos:  len(c.photos),
		Time:    time.Now(),
	}
	if c.phase == Counting {
		ev.Remaining = c.remaining
	}
	return ev
}

func (c *Controller) emit(ev Event) {
	for _, l := range c.opts.Listeners {
		l.SessionEvent(ev)
	}
}

func (c *Controller) send(r chan bool, ch chan chan bool) error {
	select {
	case ch <- r:
		<-r
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// StartAutoCapture begins the countdown. It is a no-op while a countdown is
// already running.
func (c *Controller) StartAutoCapture() error {
	r := make(chan error, 1)
	select {
	case c.start <- r:
		return <-r
	case <-c.done:
		return ErrClosed
	}
}

// Redo discards all photos and returns to Idle, from any state.
func (c *Controller) Redo() error {
	return c.send(make(chan bool, 1), c.redo)
}

// Abort cancels a running countdown, discarding the photos taken so far.
// It is a no-op unless a countdown is running.
func (c *Controller) Abort(reason error) error {
	r := abortReq{reason: reason, c: make(chan bool, 1)}
	select {
	case c.abort <- r:
		<-r.c
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Finish persists a full session and starts a new one.
func (c *Controller) Finish(ctx context.Context) (FinishResult, error) {
	r := finishReq{ctx: ctx, c: make(chan finishResp, 1)}
	select {
	case c.finish <- r:
		resp := <-r.c
		return resp.res, resp.err
	case <-c.done:
		return FinishResult{}, ErrClosed
	case <-ctx.Done():
		return FinishResult{}, ctx.Err()
	}
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	var settings process.Settings
	if c.opts.Grabber != nil {
		settings = c.opts.Grabber.Settings()
	}
	c.l.Lock()
	defer c.l.Unlock()
	st := SessionState{
		ID:       c.id,
		Phase:    c.phase,
		Photos:   len(c.photos),
		Settings: settings,
	}
	if c.phase == Counting {
		n := c.remaining
		st.Remaining = &n
	}
	return st
}

// Photos returns the photos captured so far, in capture order.
func (c *Controller) Photos() []Photo {
	c.l.Lock()
	defer c.l.Unlock()
	return append([]Photo(nil), c.photos...)
}

// Countdown reports the remaining seconds while counting. It has the
// CountdownFunc signature so the preview can burn it into frames.
func (c *Controller) Countdown() (int, bool) {
	c.l.Lock()
	defer c.l.Unlock()
	if c.phase != Counting {
		return 0, false
	}
	return c.remaining, true
}

// sync waits until all previously delivered requests and ticks have been
// handled.
func (c *Controller) sync() error {
	return c.send(make(chan bool, 1), c.barrier)
}

// Close cancels any pending tick. No capture fires after Close returns.
func (c *Controller) Close() {
	c.send(make(chan bool, 1), c.close)
}
