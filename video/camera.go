package video

import (
	"context"
	"errors"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"

	"booth/metrics"
	"booth/video/process"
	"booth/video/source"
)

// ErrNoCamera is returned while no camera is running.
var ErrNoCamera = errors.New("no camera running")

// Opener opens a camera matching the constraints.
type Opener func(ctx context.Context, c source.Constraints) (source.Source, error)

// Camera owns the active Preview and lets the device be switched at runtime.
// At most one device is held at a time: the previous one is released before
// the next is opened.
type Camera struct {
	open Opener
	opts PreviewOptions

	// startMu serializes Start and Close; l guards the fields below and is
	// never held while a device is opened or a teardown hook runs.
	startMu sync.Mutex

	l           sync.Mutex
	teardown    []func()
	preview     *Preview
	constraints source.Constraints
	settings    process.Settings
	err         error
}

type CameraStatus struct {
	Active      bool
	Constraints source.Constraints
	Size        image.Point
	Frames      int64
	Settings    process.Settings
	Error       string `json:",omitempty"`
}

func NewCamera(open Opener, opts PreviewOptions) *Camera {
	return &Camera{
		open:     open,
		opts:     opts,
		settings: opts.Settings,
	}
}

// OnTeardown registers f to run whenever the running preview is about to be
// stopped, by a device switch or by Close.
func (c *Camera) OnTeardown(f func()) {
	c.l.Lock()
	defer c.l.Unlock()
	c.teardown = append(c.teardown, f)
}

// release detaches the running preview, runs the teardown hooks, and closes
// it. Callers hold startMu but not l.
func (c *Camera) release(p *Preview) {
	if p == nil {
		return
	}
	c.l.Lock()
	hooks := append([]func(){}, c.teardown...)
	c.l.Unlock()
	for _, f := range hooks {
		f()
	}
	p.Close()
}

// Start opens the camera matching c, replacing the running one. Failure is
// final for this attempt: it is recorded, reported, and not retried.
func (c *Camera) Start(ctx context.Context, cons source.Constraints) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.l.Lock()
	old := c.preview
	c.preview = nil
	c.constraints = cons
	if cons.FacingMode != "" {
		c.settings.FacingMode = cons.FacingMode
	}
	c.l.Unlock()

	c.release(old)

	src, err := c.open(ctx, cons)

	c.l.Lock()
	defer c.l.Unlock()
	if err != nil {
		metrics.CameraOpens.WithLabelValues("failed").Inc()
		c.err = err
		log.Errorf("Unable to start camera %v: %v", cons, err)
		return err
	}
	metrics.CameraOpens.WithLabelValues("ok").Inc()
	c.err = nil

	opts := c.opts
	opts.Settings = c.settings
	c.preview = NewPreview(src, opts)
	return nil
}

func (c *Camera) current() (*Preview, error) {
	c.l.Lock()
	defer c.l.Unlock()
	if c.preview == nil {
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrNoCamera
	}
	return c.preview, nil
}

// Ready reports whether a preview is running and has rendered a frame.
func (c *Camera) Ready() bool {
	p, err := c.current()
	if err != nil {
		return false
	}
	select {
	case <-p.Ready():
		return p.Err() == nil
	default:
		return false
	}
}

// Snapshot returns a copy of the latest raw frame of the running preview.
func (c *Camera) Snapshot() (source.Frame, error) {
	p, err := c.current()
	if err != nil {
		return source.Frame{}, err
	}
	return p.Snapshot()
}

func (c *Camera) Settings() process.Settings {
	c.l.Lock()
	defer c.l.Unlock()
	return c.settings
}

// SetSettings applies to the running preview and to any future one.
func (c *Camera) SetSettings(s process.Settings) {
	c.l.Lock()
	defer c.l.Unlock()
	c.settings = s
	if c.preview != nil {
		c.preview.SetSettings(s)
	}
}

func (c *Camera) Status() CameraStatus {
	c.l.Lock()
	defer c.l.Unlock()
	st := CameraStatus{
		Constraints: c.constraints,
		Settings:    c.settings,
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	if c.preview != nil {
		st.Size = c.preview.Size()
		st.Frames = c.preview.Frames()
		if err := c.preview.Err(); err != nil {
			st.Error = err.Error()
		} else {
			st.Active = true
		}
	}
	return st
}

// Close stops the running preview and releases the device.
func (c *Camera) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.l.Lock()
	p := c.preview
	c.preview = nil
	c.l.Unlock()

	c.release(p)
}
