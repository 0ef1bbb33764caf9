package serve

import (
	"context"
	"errors"
	"net/http"

	"booth/store"
	"booth/video"
	"booth/video/source"
)

// Capturer drives a capture session; *video.Controller implements it.
type Capturer interface {
	StartAutoCapture() error
	Redo() error
	Finish(ctx context.Context) (video.FinishResult, error)
	State() video.SessionState
}

// CaptureServer exposes the capture controller:
//
//	POST /capture/start   start the countdown
//	POST /capture/redo    discard the photos
//	POST /capture/finish  store the finished set
//	GET  /capture/state   current session state
type CaptureServer struct {
	Ctrl Capturer
}

func (s *CaptureServer) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/capture/start", s.handleStart)
	mux.HandleFunc("/capture/redo", s.handleRedo)
	mux.HandleFunc("/capture/finish", s.handleFinish)
	mux.HandleFunc("/capture/state", s.handleState)
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, video.ErrNotReady),
		errors.Is(err, video.ErrClosed),
		errors.Is(err, source.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, video.ErrSessionFull), errors.Is(err, video.ErrNotFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *CaptureServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Ctrl.StartAutoCapture(); err != nil {
		fail(w, r, err, captureStatus(err))
		return
	}
	writeJSON(w, s.Ctrl.State())
}

func (s *CaptureServer) handleRedo(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Ctrl.Redo(); err != nil {
		fail(w, r, err, captureStatus(err))
		return
	}
	writeJSON(w, s.Ctrl.State())
}

type FinishResponse struct {
	Session  string
	Status   store.Status
	Saved    int
	Advisory string `json:",omitempty"`
}

func (s *CaptureServer) handleFinish(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	res, err := s.Ctrl.Finish(r.Context())
	if err != nil {
		fail(w, r, err, captureStatus(err))
		return
	}
	writeJSON(w, &FinishResponse{
		Session:  res.Session,
		Status:   res.Result.Status,
		Saved:    res.Saved,
		Advisory: store.Record{Status: res.Result.Status}.Advisory(),
	})
}

func (s *CaptureServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Ctrl.State())
}
