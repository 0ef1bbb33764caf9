package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"booth/video/source"
)

const (
	// firstFrameTimeout bounds how long opening waits for the first frame.
	firstFrameTimeout = 3 * time.Second
	// lostAfter is how long reads may keep failing before the device is
	// considered gone.
	lostAfter = 2 * time.Second
)

// VideoCapture is a camera opened through OpenCV. It implements source.Source.
type VideoCapture struct {
	Constraints source.Constraints

	cap  *gocv.VideoCapture
	size image.Point
	pool *source.FramePool

	c    chan source.Frame
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	l         sync.Mutex
	connected bool
	err       error
}

// Open opens the camera matching c. The ideal resolution is tried first; if
// the device refuses it, a relaxed attempt is made for the same device with
// no resolution hint. The returned error wraps source.ErrDeviceUnavailable
// when neither attempt yields a frame.
func Open(ctx context.Context, c source.Constraints) (*VideoCapture, error) {
	devices, err := source.ListDevices()
	if err != nil {
		log.Warnf("Unable to enumerate video devices: %v", err)
	}

	attempts := []source.Constraints{c}
	if c.HasResolution() {
		attempts = append(attempts, c.Relaxed())
	}

	var lastErr error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := open(a, devices)
		if err == nil {
			log.Infof("Opened camera %v at %dx%d", a, v.size.X, v.size.Y)
			return v, nil
		}
		log.Warnf("Failed to open camera with %v: %v", a, err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", source.ErrDeviceUnavailable, lastErr)
}

func open(c source.Constraints, devices []source.Device) (*VideoCapture, error) {
	target := c.Target(devices)
	cap, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, err
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("device %v did not open", target)
	}
	if c.HasResolution() {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}

	// Read a test frame; some drivers accept any resolution and then
	// deliver nothing.
	m := gocv.NewMat()
	defer m.Close()
	deadline := time.Now().Add(firstFrameTimeout)
	for !cap.Read(&m) || m.Empty() {
		if time.Now().After(deadline) {
			cap.Close()
			return nil, fmt.Errorf("device %v produced no frame", target)
		}
		time.Sleep(10 * time.Millisecond)
	}

	size := image.Point{X: m.Cols(), Y: m.Rows()}
	v := &VideoCapture{
		Constraints: c,
		cap:         cap,
		size:        size,
		pool:        source.NewFramePool(size),
		c:           make(chan source.Frame),
		done:        make(chan struct{}),
		connected:   true,
	}
	v.wg.Add(1)
	go v.loop()
	return v, nil
}

func (v *VideoCapture) loop() {
	defer v.wg.Done()
	defer close(v.c)

	m := gocv.NewMat()
	defer m.Close()

	var failingSince time.Time
	for {
		select {
		case <-v.done:
			return
		default:
		}

		now := time.Now()
		if ok := v.cap.Read(&m); !ok || m.Empty() {
			if failingSince.IsZero() {
				failingSince = now
				log.Warnf("Camera read failure on %v", v.Constraints)
			}
			if now.Sub(failingSince) > lostAfter {
				v.fail(fmt.Errorf("%w: no frame for %v", source.ErrDeviceLost, lostAfter))
				return
			}
			time.Sleep(time.Millisecond)
			continue
		}
		failingSince = time.Time{}

		if m.Cols() != v.size.X || m.Rows() != v.size.Y {
			v.fail(fmt.Errorf("%w: frame size changed to %dx%d", source.ErrDeviceLost, m.Cols(), m.Rows()))
			return
		}

		f := v.pool.New(now)
		bgrToRGBA(f.Img, m.ToBytes(), m.Channels())
		select {
		case v.c <- f:
		case <-v.done:
			f.Release()
			return
		}
	}
}

func (v *VideoCapture) fail(err error) {
	log.Errorf("Camera %v stopped: %v", v.Constraints, err)
	v.l.Lock()
	defer v.l.Unlock()
	v.err = err
	v.connected = false
}

func (v *VideoCapture) Get() <-chan source.Frame {
	return v.c
}

func (v *VideoCapture) Size() image.Point {
	return v.size
}

func (v *VideoCapture) Connected() bool {
	v.l.Lock()
	defer v.l.Unlock()
	return v.connected
}

func (v *VideoCapture) Err() error {
	v.l.Lock()
	defer v.l.Unlock()
	return v.err
}

// Close stops reading and releases the device. It is safe to call more than
// once.
func (v *VideoCapture) Close() {
	v.once.Do(func() {
		close(v.done)
		// Drain so the loop is never stuck on a send.
		go func() {
			for f := range v.c {
				f.Release()
			}
		}()
		v.wg.Wait()
		if err := v.cap.Close(); err != nil {
			log.Errorf("Failed to close camera %v: %v", v.Constraints, err)
		}
		v.pool.Close()
		v.l.Lock()
		v.connected = false
		v.l.Unlock()
		log.Infof("Camera %v released", v.Constraints)
	})
}
