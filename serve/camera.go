package serve

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"booth/video"
	"booth/video/process"
	"booth/video/source"
)

// CameraControl is the running camera; *video.Camera implements it.
type CameraControl interface {
	Start(ctx context.Context, c source.Constraints) error
	Status() video.CameraStatus
	Settings() process.Settings
	SetSettings(s process.Settings)
}

// CameraServer handles device enumeration, camera switching and render
// settings.
type CameraServer struct {
	Camera CameraControl
	// Base supplies the resolution hints used when switching devices.
	Base source.Constraints
	// Devices lists the attached cameras. Defaults to source.ListDevices.
	Devices func() ([]source.Device, error)
}

func (s *CameraServer) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/camera", s.handleCamera)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/settings", s.handleSettings)
}

type DevicesResponse struct {
	Devices []source.Device
	Front   *source.Device `json:",omitempty"`
	Back    *source.Device `json:",omitempty"`
	Wide    *source.Device `json:",omitempty"`
}

func (s *CameraServer) listDevices() ([]source.Device, error) {
	if s.Devices != nil {
		return s.Devices()
	}
	return source.ListDevices()
}

func (s *CameraServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.listDevices()
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	cls := source.Classify(devices)
	writeJSON(w, &DevicesResponse{
		Devices: devices,
		Front:   cls.Front,
		Back:    cls.Back,
		Wide:    cls.Wide,
	})
}

// handleCamera reports the camera status on GET. On POST it switches to the
// device given by "device" (an id or index) or "facing" (user|environment).
func (s *CameraServer) handleCamera(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		writeJSON(w, s.Camera.Status())
		return
	}
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cons := s.Base.WithDevice(r.Form.Get("device"))
	if f := r.Form.Get("facing"); f != "" {
		facing, err := source.ParseFacingMode(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cons = cons.WithFacing(facing)
	} else {
		cons = cons.WithFacing(s.Camera.Settings().FacingMode)
	}

	if err := s.Camera.Start(r.Context(), cons); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, source.ErrDeviceUnavailable) {
			code = http.StatusServiceUnavailable
		}
		fail(w, r, err, code)
		return
	}
	writeJSON(w, s.Camera.Status())
}

// handleSettings reports the render settings on GET and updates any of
// "mirrored", "filter" and "facing" on POST.
func (s *CameraServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		writeJSON(w, s.Camera.Settings())
		return
	}
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	settings := s.Camera.Settings()
	if v := r.Form.Get("mirrored"); v != "" {
		m, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings.Mirrored = m
	}
	if v := r.Form.Get("filter"); v != "" {
		f, err := process.ParseFilter(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings.Filter = f
	}
	if v := r.Form.Get("facing"); v != "" {
		f, err := source.ParseFacingMode(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings.FacingMode = f
	}
	s.Camera.SetSettings(settings)
	writeJSON(w, settings)
}
