package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"booth/video"
	"booth/video/process"
	"booth/video/source"
)

func TestDeviceUnavailable(t *testing.T) {
	denied := func(ctx context.Context, c source.Constraints) (source.Source, error) {
		return nil, fmt.Errorf("%w: permission denied", source.ErrDeviceUnavailable)
	}
	cam := video.NewCamera(denied, video.PreviewOptions{Settings: process.DefaultSettings()})
	defer cam.Close()
	ctrl := video.NewController(video.ControllerOptions{Grabber: cam})
	defer ctrl.Close()

	mux := http.NewServeMux()
	(&CameraServer{Camera: cam, Base: source.Wide}).RegisterHandlers(mux)
	(&CaptureServer{Ctrl: ctrl}).RegisterHandlers(mux)

	if rec := do(t, mux, "POST", "/camera", url.Values{"device": {"/dev/video0"}}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("switch camera = %d, want 503", rec.Code)
	}
	if rec := do(t, mux, "POST", "/capture/start", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("start capture = %d, want 503", rec.Code)
	}

	var st video.CameraStatus
	decode(t, do(t, mux, "GET", "/camera", nil), &st)
	if st.Active || st.Error == "" {
		t.Errorf("status = %+v", st)
	}
}

type stubCamera struct {
	settings process.Settings
	started  []source.Constraints
	err      error
}

func (c *stubCamera) Start(ctx context.Context, cons source.Constraints) error {
	c.started = append(c.started, cons)
	return c.err
}

func (c *stubCamera) Status() video.CameraStatus {
	return video.CameraStatus{Active: c.err == nil, Settings: c.settings}
}

func (c *stubCamera) Settings() process.Settings      { return c.settings }
func (c *stubCamera) SetSettings(s process.Settings) { c.settings = s }

func TestCameraSwitch(t *testing.T) {
	cam := &stubCamera{settings: process.DefaultSettings()}
	mux := http.NewServeMux()
	(&CameraServer{Camera: cam, Base: source.Standard}).RegisterHandlers(mux)

	if rec := do(t, mux, "POST", "/camera", url.Values{"device": {"2"}}); rec.Code != http.StatusOK {
		t.Fatalf("switch = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, "POST", "/camera", url.Values{"facing": {"environment"}}); rec.Code != http.StatusOK {
		t.Fatalf("switch = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, "POST", "/camera", url.Values{"facing": {"up"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad facing = %d, want 400", rec.Code)
	}
	if len(cam.started) != 2 {
		t.Fatalf("started %d times, want 2", len(cam.started))
	}
	if c := cam.started[0]; c.DeviceID != "2" || c.IdealWidth != 1440 || c.FacingMode != source.FacingUser {
		t.Errorf("first switch = %v", c)
	}
	if c := cam.started[1]; c.DeviceID != "" || c.FacingMode != source.FacingEnvironment {
		t.Errorf("second switch = %v", c)
	}

	cam.err = errors.New("boom")
	if rec := do(t, mux, "POST", "/camera", url.Values{}); rec.Code != http.StatusInternalServerError {
		t.Errorf("failed switch = %d, want 500", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	cam := &stubCamera{settings: process.DefaultSettings()}
	mux := http.NewServeMux()
	(&CameraServer{Camera: cam}).RegisterHandlers(mux)

	rec := do(t, mux, "POST", "/settings", url.Values{"mirrored": {"false"}, "filter": {"sepia"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("settings = %d: %s", rec.Code, rec.Body)
	}
	want := process.Settings{Mirrored: false, Filter: process.Sepia, FacingMode: source.FacingUser}
	if cam.settings != want {
		t.Errorf("settings = %+v, want %+v", cam.settings, want)
	}
	var got process.Settings
	decode(t, do(t, mux, "GET", "/settings", nil), &got)
	if got != want {
		t.Errorf("GET /settings = %+v", got)
	}

	for _, form := range []url.Values{
		{"filter": {"noir"}},
		{"mirrored": {"maybe"}},
		{"facing": {"left"}},
	} {
		if rec := do(t, mux, "POST", "/settings", form); rec.Code != http.StatusBadRequest {
			t.Errorf("POST /settings %v = %d, want 400", form, rec.Code)
		}
	}
	if cam.settings != want {
		t.Errorf("settings changed by a bad request: %+v", cam.settings)
	}
	if rec := do(t, mux, "PUT", "/settings", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /settings = %d", rec.Code)
	}
}

func TestDevices(t *testing.T) {
	s := &CameraServer{
		Camera: &stubCamera{},
		Devices: func() ([]source.Device, error) {
			return []source.Device{
				{ID: "/dev/video0", Index: 0, Label: "Integrated Camera (front)"},
				{ID: "/dev/video2", Index: 2, Label: "Câmera traseira"},
			}, nil
		},
	}
	mux := http.NewServeMux()
	s.RegisterHandlers(mux)

	var resp DevicesResponse
	decode(t, do(t, mux, "GET", "/devices", nil), &resp)
	if len(resp.Devices) != 2 {
		t.Fatalf("devices = %+v", resp.Devices)
	}
	if resp.Front == nil || resp.Front.ID != "/dev/video0" {
		t.Errorf("front = %+v", resp.Front)
	}
	if resp.Back == nil || resp.Back.ID != "/dev/video2" {
		t.Errorf("back = %+v", resp.Back)
	}
}
