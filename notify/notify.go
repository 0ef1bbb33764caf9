package notify

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"booth/store"
	"booth/video"
)

// Notification is sent to all NotifyListeners registered with Notifier.
type Notification struct {
	TimeString string
	Session    string
	Photos     int
	Status     string
	Advisory   string `json:",omitempty"`
}

type NotifyListener interface {
	Notify(n *Notification) error
}

// Notifier tells listeners when a finished photo set is ready. It
// implements video.Listener.
type Notifier struct {
	Listeners []NotifyListener

	// Hours returns the [start, end) local hours during which notifications
	// are sent. Nil means always.
	Hours func() (start, end int)
}

func (n *Notifier) quiet(t time.Time) bool {
	if n.Hours == nil {
		return false
	}
	start, end := n.Hours()
	return t.Hour() < start || t.Hour() >= end
}

// SessionEvent is invoked on the controller goroutine; listeners are called
// asynchronously.
func (n *Notifier) SessionEvent(e video.Event) {
	if e.Kind != video.EventFinished {
		return
	}
	if n.quiet(e.Time) {
		log.Infof("Would send notification, but currently in quiet hours.")
		return
	}

	notification := &Notification{
		TimeString: e.Time.Format("3:04 PM"),
		Session:    e.Session,
		Photos:     e.Photos,
		Status:     e.Result,
		Advisory:   store.Record{Status: store.Status(e.Result)}.Advisory(),
	}
	log.Infof("Sending notification: %v", spew.Sdump(notification))
	for _, l := range n.Listeners {
		go func(l NotifyListener) {
			if err := l.Notify(notification); err != nil {
				log.Errorf("Failed to send notification: %v", err)
			}
		}(l)
	}
}
