package serve

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"booth/store"
)

// PhotoReader reads and clears the stored photo set; *store.PhotoStore
// implements it.
type PhotoReader interface {
	Read(ctx context.Context) (store.Record, error)
	Clear(ctx context.Context) error
}

type PhotosResponse struct {
	Photos  []string
	Count   int
	Status  store.Status `json:",omitempty"`
	SavedAt *time.Time   `json:",omitempty"`

	// Advisory is shown alongside the photos when the set was degraded to
	// fit the store. It is not an error.
	Advisory string `json:",omitempty"`
}

func BuildPhotosResponse(rec store.Record) *PhotosResponse {
	resp := &PhotosResponse{
		Photos:   rec.Photos,
		Count:    len(rec.Photos),
		Status:   rec.Status,
		Advisory: rec.Advisory(),
	}
	if resp.Photos == nil {
		resp.Photos = []string{}
	}
	if !rec.SavedAt.IsZero() {
		t := rec.SavedAt
		resp.SavedAt = &t
	}
	return resp
}

// PhotosServer serves the stored photo set for the result page.
type PhotosServer struct {
	Store PhotoReader
}

func (s *PhotosServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.Read(r.Context())
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, BuildPhotosResponse(rec))
}

// ClearServer empties the photo slot, as when returning to the camera.
type ClearServer struct {
	Store PhotoReader
}

func (s *ClearServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Store.Clear(r.Context()); err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	log.WithField("addr", r.RemoteAddr).Info("Cleared stored photos")
	w.WriteHeader(http.StatusNoContent)
}
