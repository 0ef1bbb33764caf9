package video

import (
	"errors"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"booth/metrics"
	"booth/util"
	"booth/video/process"
	"booth/video/sink"
	"booth/video/source"
)

var (
	// ErrNoFrame is returned by Snapshot before the first frame arrives.
	ErrNoFrame = errors.New("no frame rendered yet")
	// ErrStopped is returned by Snapshot once the preview has stopped.
	ErrStopped = errors.New("preview stopped")
)

// CountdownFunc reports the countdown to burn into the preview, if any.
type CountdownFunc func() (remaining int, ok bool)

type PreviewOptions struct {
	Settings process.Settings

	// Sinks receive every rendered (mirrored, filtered) frame.
	Sinks []sink.Sink
	// RawSinks receive every frame as delivered by the source.
	RawSinks []sink.Sink

	Countdown CountdownFunc
}

// Preview is the live preview pipeline. It owns its Source: frames are
// rendered with the current settings as fast as the source delivers them,
// and Close releases the device.
type Preview struct {
	src  source.Source
	opts PreviewOptions

	l        sync.Mutex
	settings process.Settings
	latest   *image.RGBA
	latestAt time.Time
	frames   int64
	err      error

	// out is only touched by the loop goroutine.
	out *image.RGBA

	ready   *util.Event
	stopped *util.Event
	once    sync.Once
}

// NewPreview takes ownership of src and starts rendering.
func NewPreview(src source.Source, opts PreviewOptions) *Preview {
	p := &Preview{
		src:      src,
		opts:     opts,
		settings: opts.Settings,
		ready:    util.NewEvent(),
		stopped:  util.NewEvent(),
	}
	go p.loop()
	return p
}

func (p *Preview) loop() {
	defer p.stopped.Notify()
	for f := range p.src.Get() {
		p.renderFrame(f)
		f.Release()
	}
	err := p.src.Err()
	if err == nil {
		err = ErrStopped
	}
	p.l.Lock()
	p.err = err
	p.l.Unlock()
	log.Infof("Preview stopped: %v", err)
}

func (p *Preview) renderFrame(f source.Frame) {
	for _, s := range p.opts.RawSinks {
		s.Put(f)
	}

	start := time.Now()
	p.l.Lock()
	if p.latest == nil || p.latest.Rect != f.Img.Rect {
		p.latest = image.NewRGBA(f.Img.Rect)
	}
	copy(p.latest.Pix, f.Img.Pix)
	p.latestAt = f.Time
	settings := p.settings
	p.l.Unlock()

	if p.out == nil || p.out.Rect.Size() != f.Img.Rect.Size() {
		p.out = image.NewRGBA(image.Rectangle{Max: f.Img.Rect.Size()})
	}
	process.Render(p.out, f.Img, settings)
	elapsed := time.Since(start)
	metrics.PreviewRenderSeconds.Observe(elapsed.Seconds())
	metrics.PreviewFrames.Inc()
	log.Debugf("Preview frame rendered in %v", elapsed)

	if p.opts.Countdown != nil {
		if n, ok := p.opts.Countdown(); ok {
			process.DrawCountdown(p.out, n)
		}
	}

	out := source.NewFrame(p.out, f.Time)
	for _, s := range p.opts.Sinks {
		s.Put(out)
	}

	p.l.Lock()
	p.frames++
	p.l.Unlock()
	p.ready.Notify()
}

// Settings returns the settings applied to upcoming frames.
func (p *Preview) Settings() process.Settings {
	p.l.Lock()
	defer p.l.Unlock()
	return p.settings
}

// SetSettings changes the settings starting with the next frame.
func (p *Preview) SetSettings(s process.Settings) {
	p.l.Lock()
	defer p.l.Unlock()
	p.settings = s
}

// Snapshot returns a copy of the latest unprocessed frame.
func (p *Preview) Snapshot() (source.Frame, error) {
	p.l.Lock()
	defer p.l.Unlock()
	if p.err != nil {
		return source.Frame{}, p.err
	}
	if p.latest == nil {
		return source.Frame{}, ErrNoFrame
	}
	img := image.NewRGBA(p.latest.Rect)
	copy(img.Pix, p.latest.Pix)
	return source.NewFrame(img, p.latestAt), nil
}

// Frames returns the number of frames rendered so far.
func (p *Preview) Frames() int64 {
	p.l.Lock()
	defer p.l.Unlock()
	return p.frames
}

// Ready is closed once the first frame has been rendered.
func (p *Preview) Ready() <-chan struct{} {
	return p.ready.Done()
}

// Done is closed once the preview has stopped, for any reason.
func (p *Preview) Done() <-chan struct{} {
	return p.stopped.Done()
}

// Err returns why the preview stopped, or nil while it is running.
func (p *Preview) Err() error {
	p.l.Lock()
	defer p.l.Unlock()
	return p.err
}

// Size returns the native size of the source.
func (p *Preview) Size() image.Point {
	return p.src.Size()
}

// Close releases the source and waits for the render loop to exit.
func (p *Preview) Close() {
	p.once.Do(func() {
		p.src.Close()
		<-p.stopped.Done()
	})
}
