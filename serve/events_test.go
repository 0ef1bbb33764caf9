package serve

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"booth/video"
)

func TestEventUpdater(t *testing.T) {
	m := NewEventUpdater()
	defer m.Close()
	srv := httptest.NewServer(m)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	// The client is registered asynchronously; publish until it hears one.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			m.SessionEvent(video.Event{Kind: video.EventTick, Session: "s1", Phase: video.Counting, Remaining: 2})
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var ev video.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != video.EventTick || ev.Session != "s1" || ev.Remaining != 2 {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventUpdaterRejectsPlainHTTP(t *testing.T) {
	m := NewEventUpdater()
	defer m.Close()
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/events", nil))
	if rec.Code < 400 {
		t.Errorf("plain GET = %d, want an error", rec.Code)
	}
}
