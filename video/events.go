package video

import (
	"time"
)

type EventKind string

const (
	EventStarted  EventKind = "started"
	EventTick     EventKind = "tick"
	EventCaptured EventKind = "captured"
	EventFull     EventKind = "full"
	EventRedo     EventKind = "redo"
	EventFinished EventKind = "finished"
	EventError    EventKind = "error"
)

// Event reports a capture session transition to listeners.
type Event struct {
	Kind      EventKind
	Session   string
	Phase     Phase
	Photos    int
	Remaining int    `json:",omitempty"`
	Result    string `json:",omitempty"`
	Error     string `json:",omitempty"`
	Time      time.Time
}

// Listener receives session events on the controller goroutine and must not
// block.
type Listener interface {
	SessionEvent(e Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(e Event)

func (f ListenerFunc) SessionEvent(e Event) { f(e) }
