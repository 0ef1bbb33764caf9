package sink

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"booth/video/source"
)

// MJPEG multi-streaming, based on implementation by saljam:
// https://github.com/saljam/mjpeg/blob/master/stream.go

const boundaryWord = "MJPEGBOUNDARY"
const headerf = "\r\n" +
	"--" + boundaryWord + "\r\n" +
	"Content-Type: image/jpeg\r\n" +
	"Content-Length: %d\r\n" +
	"X-Timestamp: %d.%06d\r\n" +
	"\r\n"

// streamQuality is the JPEG quality of streamed frames.
const streamQuality = 80

type MJPEGID struct {
	Name string
}

type MJPEGServer struct {
	m map[MJPEGID]*MJPEGStream

	lock sync.Mutex
}

func NewMJPEGServer() *MJPEGServer {
	return &MJPEGServer{
		m: make(map[MJPEGID]*MJPEGStream),
	}
}

func (s *MJPEGServer) NewStream(id MJPEGID) *MJPEGStream {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.m[id]; ok {
		log.Panicf("A stream for %v already exists", id)
	}

	ms := &MJPEGStream{
		id:     id,
		m:      make(map[chan []byte]bool),
		parent: s,
		done:   make(chan struct{}),
	}

	s.m[id] = ms
	return ms
}

func (s *MJPEGServer) getStream(id MJPEGID) *MJPEGStream {
	s.lock.Lock()
	defer s.lock.Unlock()
	if ms, ok := s.m[id]; ok {
		return ms
	}
	return nil
}

// ServeHTTP implements http.Handler interface, serving MJPEG.
func (s *MJPEGServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := MJPEGID{
		Name: r.Form.Get("name"),
	}

	if id.Name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	stream := s.getStream(id)
	if stream == nil {
		http.Error(w, "unknown stream ID", http.StatusNotFound)
		return
	}

	log.WithField("addr", r.RemoteAddr).Infof("MJPEG stream connected to %v", id)
	w.Header().Add("Content-Type", "multipart/x-mixed-replace;boundary="+boundaryWord)
	w.Header().Add("Cache-Control", "no-cache")

	c := make(chan []byte, 1)
	stream.lock.Lock()
	stream.m[c] = true
	stream.lock.Unlock()

	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
loop:
	for {
		select {
		case b := <-c:
			if _, err := w.Write(b); err != nil {
				break loop
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-stream.done:
			break loop
		case <-r.Context().Done():
			break loop
		}
	}

	stream.lock.Lock()
	delete(stream.m, c)
	stream.lock.Unlock()
	log.WithField("addr", r.RemoteAddr).Infof("MJPEG stream disconnected from %v", id)
}

// MJPEGStream is one named stream of a MJPEGServer. It implements Sink.
type MJPEGStream struct {
	id MJPEGID
	m  map[chan []byte]bool

	parent *MJPEGServer
	lock   sync.Mutex
	done   chan struct{}
	once   sync.Once
}

func (s *MJPEGStream) empty() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m) == 0
}

// Listeners returns the number of connected clients.
func (s *MJPEGStream) Listeners() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m)
}

func (s *MJPEGStream) Put(input source.Frame) {
	if s.empty() {
		// Nobody is listening; don't bother encoding.
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, input.Img, &jpeg.Options{Quality: streamQuality}); err != nil {
		log.Errorf("Error encoding to JPG for MJPEG stream %v: %v", s.id, err)
		return
	}
	jpg := buf.Bytes()
	ts := input.Time
	header := fmt.Sprintf(headerf, len(jpg), ts.Unix(), ts.Nanosecond()/1000)
	frame := make([]byte, 0, len(header)+len(jpg))
	frame = append(frame, header...)
	frame = append(frame, jpg...)

	s.lock.Lock()
	defer s.lock.Unlock()
	for c := range s.m {
		select {
		case c <- frame:
		default:
			// Skip listeners not ready for next frame.
		}
	}
}

// Close removes the stream from its server and disconnects all clients.
func (s *MJPEGStream) Close() {
	s.once.Do(func() {
		s.parent.lock.Lock()
		delete(s.parent.m, s.id)
		s.parent.lock.Unlock()
		close(s.done)
	})
}
