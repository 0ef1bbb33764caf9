package video

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"booth/video/process"
	"booth/video/sink"
	"booth/video/source"
)

// collect returns a sink that copies every frame it receives onto a channel.
func collect() (sink.Sink, chan *image.RGBA) {
	c := make(chan *image.RGBA, 16)
	return sink.Func(func(f source.Frame) {
		cp := f.Clone()
		select {
		case c <- cp.Img:
		default:
		}
	}), c
}

func next(t *testing.T, c chan *image.RGBA) *image.RGBA {
	t.Helper()
	select {
	case img := <-c:
		return img
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func wait(t *testing.T, c <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPreviewRenders(t *testing.T) {
	src := newFakeSource(4, 1)
	out, rendered := collect()
	raw, raws := collect()
	p := NewPreview(src, PreviewOptions{
		Settings: process.DefaultSettings(),
		Sinks:    []sink.Sink{out},
		RawSinks: []sink.Sink{raw},
	})
	defer p.Close()

	if _, err := p.Snapshot(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Snapshot before first frame = %v, want ErrNoFrame", err)
	}

	src.push(stripe(4))
	wait(t, p.Ready(), "first frame")

	// Mirrored for a user-facing camera.
	img := next(t, rendered)
	if got := img.RGBAAt(0, 0).R; got != 30 {
		t.Errorf("rendered pixel 0 red = %d, want 30", got)
	}
	if got := next(t, raws).RGBAAt(0, 0).R; got != 0 {
		t.Errorf("raw pixel 0 red = %d, want 0", got)
	}

	snap, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Img.RGBAAt(0, 0).R; got != 0 {
		t.Errorf("snapshot is not the raw frame: red = %d", got)
	}

	p.SetSettings(process.Settings{Filter: process.Grayscale, FacingMode: source.FacingUser})
	src.push(stripe(4))
	img = next(t, rendered)
	if got := img.RGBAAt(0, 0); got != (color.RGBA{50, 50, 50, 255}) {
		t.Errorf("grayscale pixel = %v, want 50 gray", got)
	}
	if p.Frames() < 1 {
		t.Errorf("Frames() = %d", p.Frames())
	}
}

func TestPreviewCountdownOverlay(t *testing.T) {
	src := newFakeSource(64, 64)
	out, rendered := collect()
	p := NewPreview(src, PreviewOptions{
		Settings:  process.DefaultSettings(),
		Sinks:     []sink.Sink{out},
		Countdown: func() (int, bool) { return 3, true },
	})
	defer p.Close()

	black := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 3; i < len(black.Pix); i += 4 {
		black.Pix[i] = 0xff
	}
	src.push(black)
	img := next(t, rendered)

	bright := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 128 {
			bright++
		}
	}
	if bright == 0 {
		t.Error("countdown not drawn on the preview")
	}

	snap, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(snap.Img.Pix); i += 4 {
		if snap.Img.Pix[i] != 0 {
			t.Fatal("countdown leaked into the raw snapshot")
		}
	}
}

func TestPreviewSourceLost(t *testing.T) {
	src := newFakeSource(4, 1)
	p := NewPreview(src, PreviewOptions{Settings: process.DefaultSettings()})
	defer p.Close()

	src.push(stripe(4))
	wait(t, p.Ready(), "first frame")
	src.lose(source.ErrDeviceLost)
	wait(t, p.Done(), "preview to stop")

	if !errors.Is(p.Err(), source.ErrDeviceLost) {
		t.Errorf("Err() = %v, want ErrDeviceLost", p.Err())
	}
	if _, err := p.Snapshot(); !errors.Is(err, source.ErrDeviceLost) {
		t.Errorf("Snapshot after loss = %v", err)
	}
}

func TestPreviewClose(t *testing.T) {
	src := newFakeSource(4, 1)
	p := NewPreview(src, PreviewOptions{Settings: process.DefaultSettings()})

	p.Close()
	p.Close()
	if !src.isClosed() {
		t.Error("source not released")
	}
	if !errors.Is(p.Err(), ErrStopped) {
		t.Errorf("Err() = %v, want ErrStopped", p.Err())
	}
}
