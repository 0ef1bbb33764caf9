package serve

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"booth/video"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	// Messages queued per client before the client is considered stuck.
	clientBuffer = 32
)

// EventUpdater pushes capture session events to websocket clients as JSON.
type EventUpdater struct {
	upgrader websocket.Upgrader
	cs       map[chan []byte]bool
	addc     chan chan []byte
	delc     chan chan []byte
	notify   chan []byte
	done     chan struct{}
}

func NewEventUpdater() *EventUpdater {
	m := &EventUpdater{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan []byte]bool),
		addc:   make(chan chan []byte),
		delc:   make(chan chan []byte),
		notify: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *EventUpdater) loop() {
	for {
		select {
		case c := <-m.addc:
			m.cs[c] = true
		case c := <-m.delc:
			delete(m.cs, c)
		case msg := <-m.notify:
			for k := range m.cs {
				select {
				case k <- msg:
				default:
					log.Warnf("Event client is not keeping up, dropping event")
				}
			}
		case <-m.done:
			return
		}
	}
}

// SessionEvent implements video.Listener. It never blocks the controller.
func (m *EventUpdater) SessionEvent(e video.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Unable to encode session event: %v", err)
		return
	}
	select {
	case m.notify <- msg:
	default:
		log.Warnf("Event queue full, dropping %s event", e.Kind)
	}
}

// Close stops the broadcast loop. Connected clients are left to time out.
func (m *EventUpdater) Close() {
	close(m.done)
}

func (m *EventUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for event stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *EventUpdater) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to session event socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from session event socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan []byte, clientBuffer)
	select {
	case m.addc <- notifyc:
	case <-m.done:
		return
	}
	defer func() {
		select {
		case m.delc <- notifyc:
		case <-m.done:
		}
	}()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-notifyc:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-closed:
			return
		case <-m.done:
			return
		}
	}
}
