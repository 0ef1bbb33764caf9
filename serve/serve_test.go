package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"booth/collage"
	"booth/store"
	"booth/video"
	"booth/video/process"
	"booth/video/source"
)

type testGrabber struct{}

func (testGrabber) Ready() bool { return true }

func (testGrabber) Snapshot() (source.Frame, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return source.NewFrame(img, time.Now()), nil
}

func (testGrabber) Settings() process.Settings { return process.DefaultSettings() }

func newStore(t *testing.T) *store.PhotoStore {
	t.Helper()
	fs, err := store.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.New(fs, store.Options{})
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func newBoothMux(ctrl Capturer, st PhotoReader, patterns *PatternServer) *http.ServeMux {
	mux := http.NewServeMux()
	(&CaptureServer{Ctrl: ctrl}).RegisterHandlers(mux)
	mux.Handle("/photos", &PhotosServer{Store: st})
	mux.Handle("/photos/clear", &ClearServer{Store: st})
	mux.Handle("/collage", &CollageServer{
		Store:      st,
		Patterns:   patterns,
		Background: func() string { return "#F8F9FE" },
	})
	if patterns != nil {
		mux.Handle("/pattern", patterns)
	}
	mux.Handle("/options", &OptionsServer{
		Colors:   func() []string { return []string{"#ffffff", "#000000"} },
		Patterns: patterns,
	})
	return mux
}

func TestBoothFlow(t *testing.T) {
	st := newStore(t)
	ctrl := video.NewController(video.ControllerOptions{
		Grabber: testGrabber{},
		Store:   st,
		Tick:    time.Millisecond,
	})
	defer ctrl.Close()
	mux := newBoothMux(ctrl, st, nil)

	if rec := do(t, mux, "POST", "/collage", url.Values{}); rec.Code != http.StatusNotFound {
		t.Errorf("collage with no photos = %d, want 404", rec.Code)
	}
	if rec := do(t, mux, "POST", "/capture/finish", nil); rec.Code != http.StatusConflict {
		t.Errorf("finish while idle = %d, want 409", rec.Code)
	}

	rec := do(t, mux, "POST", "/capture/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var state video.SessionState
		decode(t, do(t, mux, "GET", "/capture/state", nil), &state)
		if state.Phase == video.Full {
			if state.Photos != video.MaxPhotos {
				t.Fatalf("full session with %d photos", state.Photos)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never filled: %+v", state)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec := do(t, mux, "POST", "/capture/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("start on full session = %d, want 409", rec.Code)
	}

	rec = do(t, mux, "POST", "/capture/finish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish = %d: %s", rec.Code, rec.Body)
	}
	var fin FinishResponse
	decode(t, rec, &fin)
	if fin.Status != store.StatusOK || fin.Saved != video.MaxPhotos || fin.Advisory != "" {
		t.Errorf("finish = %+v", fin)
	}

	var photos PhotosResponse
	decode(t, do(t, mux, "GET", "/photos", nil), &photos)
	if photos.Count != video.MaxPhotos || len(photos.Photos) != video.MaxPhotos || photos.Advisory != "" {
		t.Errorf("photos = %d (%q)", photos.Count, photos.Advisory)
	}
	for i, p := range photos.Photos {
		if !strings.HasPrefix(p, "data:image/jpeg;base64,") {
			t.Errorf("photo %d is not a data URI", i)
		}
	}

	rec = do(t, mux, "POST", "/collage", url.Values{"caption": {"Hello World"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("collage = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="photo-grid.png"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	l := collage.DefaultLayout
	if got, want := img.Bounds().Dy(), 4*l.PhotoHeight+3*l.Gap+2*l.Padding+l.Gap+l.PanelHeight(1); got != want {
		t.Errorf("collage height = %d, want %d", got, want)
	}

	rec = do(t, mux, "POST", "/collage", url.Values{"format": {"jpeg"}, "color": {"#ff0000"}})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("jpeg collage = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="photo-grid.jpg"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	if rec := do(t, mux, "POST", "/photos/clear", nil); rec.Code != http.StatusNoContent {
		t.Errorf("clear = %d", rec.Code)
	}
	decode(t, do(t, mux, "GET", "/photos", nil), &photos)
	if photos.Count != 0 || photos.Photos == nil {
		t.Errorf("photos after clear = %+v", photos)
	}
}

func TestCaptureMethods(t *testing.T) {
	ctrl := video.NewController(video.ControllerOptions{Grabber: testGrabber{}})
	defer ctrl.Close()
	mux := newBoothMux(ctrl, newStore(t), nil)
	for _, path := range []string{"/capture/start", "/capture/redo", "/capture/finish", "/photos/clear", "/collage"} {
		if rec := do(t, mux, "GET", path, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s = %d, want 405", path, rec.Code)
		}
	}
	if rec := do(t, mux, "POST", "/capture/redo", nil); rec.Code != http.StatusOK {
		t.Errorf("redo = %d", rec.Code)
	}
}

type stubReader struct {
	rec store.Record
	err error
}

func (s *stubReader) Read(ctx context.Context) (store.Record, error) { return s.rec, s.err }
func (s *stubReader) Clear(ctx context.Context) error                { return s.err }

func TestCollageErrors(t *testing.T) {
	garbage := &stubReader{rec: store.Record{Photos: []string{"data:image/jpeg;base64,aGVsbG8="}}}
	notURI := &stubReader{rec: store.Record{Photos: []string{"hello"}}}
	broken := &stubReader{err: errors.New("backend down")}
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	good := &stubReader{rec: store.Record{Photos: []string{store.DataURI(buf.Bytes())}}}

	tests := []struct {
		name   string
		reader PhotoReader
		form   url.Values
		code   int
	}{
		{"undecodable photo", garbage, url.Values{}, http.StatusUnprocessableEntity},
		{"not a data uri", notURI, url.Values{}, http.StatusUnprocessableEntity},
		{"store failure", broken, url.Values{}, http.StatusInternalServerError},
		{"caption too long", good, url.Values{"caption": {strings.Repeat("a", collage.MaxCaption+1)}}, http.StatusBadRequest},
		{"bad color", good, url.Values{"color": {"blurple"}}, http.StatusBadRequest},
		{"bad caption color", good, url.Values{"caption_color": {"#12"}}, http.StatusBadRequest},
		{"color and pattern", good, url.Values{"color": {"#fff"}, "pattern": {"hearts"}}, http.StatusBadRequest},
		{"unknown pattern", good, url.Values{"pattern": {"hearts"}}, http.StatusBadRequest},
		{"bad format", good, url.Values{"format": {"gif"}}, http.StatusBadRequest},
		{"ok", good, url.Values{"caption": {strings.Repeat("a", collage.MaxCaption)}}, http.StatusOK},
	}
	for _, test := range tests {
		s := &CollageServer{Store: test.reader, Background: func() string { return "#ffffff" }}
		if rec := do(t, s, "POST", "/collage", test.form); rec.Code != test.code {
			t.Errorf("%s: code = %d, want %d (%s)", test.name, rec.Code, test.code, rec.Body)
		}
	}
}

func TestPhotosAdvisory(t *testing.T) {
	tests := []struct {
		status   store.Status
		advisory string
	}{
		{store.StatusOK, ""},
		{store.StatusDegraded, "fotos reduzidas"},
		{store.StatusPartial, "espaço insuficiente: apenas a primeira foto foi salva"},
	}
	for _, test := range tests {
		s := &PhotosServer{Store: &stubReader{rec: store.Record{Photos: []string{"data:image/jpeg;base64,"}, Status: test.status}}}
		rec := do(t, s, "GET", "/photos", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: code = %d", test.status, rec.Code)
		}
		var resp PhotosResponse
		decode(t, rec, &resp)
		if resp.Advisory != test.advisory || resp.Status != test.status {
			t.Errorf("%s: response = %+v", test.status, resp)
		}
	}
}

func TestPatterns(t *testing.T) {
	dir := t.TempDir()
	tile := image.NewRGBA(image.Rect(0, 0, 2, 2))
	tile.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "hearts.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(broken, []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{"hearts": path, "broken": broken}
	patterns := &PatternServer{
		Lookup: func(name string) (string, bool) {
			p, ok := files[name]
			return p, ok
		},
		Names: func() []string { return []string{"hearts", "broken"} },
	}

	st := newStore(t)
	if _, err := st.Write(context.Background(), [][]byte{buf.Bytes()}); err != nil {
		t.Fatal(err)
	}
	ctrl := video.NewController(video.ControllerOptions{})
	defer ctrl.Close()
	mux := newBoothMux(ctrl, st, patterns)

	rec := do(t, mux, "GET", "/pattern?name=hearts", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("pattern = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := do(t, mux, "GET", "/pattern?name=simple", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pattern = %d, want 404", rec.Code)
	}

	if rec := do(t, mux, "POST", "/collage", url.Values{"pattern": {"hearts"}}); rec.Code != http.StatusOK {
		t.Errorf("pattern collage = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, "POST", "/collage", url.Values{"pattern": {"broken"}}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("broken pattern collage = %d, want 422", rec.Code)
	}

	var opts OptionsResponse
	decode(t, do(t, mux, "GET", "/options", nil), &opts)
	if fmt.Sprint(opts.Patterns) != "[broken hearts]" || len(opts.Colors) != 2 || opts.MaxCaption != collage.MaxCaption {
		t.Errorf("options = %+v", opts)
	}
}
