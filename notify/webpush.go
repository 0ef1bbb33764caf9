package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnknownSubscription is returned when unsubscribing an endpoint that was
// never registered.
var ErrUnknownSubscription = errors.New("subscription not found")

const (
	// pushTTL keeps an undelivered "photos ready" push around for a while;
	// guests often pick their phone up minutes after the session.
	pushTTL = 15 * 60

	// Push services cap topics at 32 URL-safe base64 characters.
	maxTopic = 32
)

type VAPIDKey struct {
	Public  string
	Private string
}

// Subscription is a browser registered for "photos ready" pushes.
type Subscription struct {
	gorm.Model

	Endpoint string `gorm:"size:512;uniqueIndex"`
	Peer     string
	// Raw is the browser's PushSubscription JSON, keys included.
	Raw string `json:"-"`

	LastSuccess *time.Time
	LastFailure *time.Time
	LastError   string
}

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title    string
	Body     string
	Session  string
	Photos   int
	Status   string
	Advisory string `json:",omitempty"`
}

func payloadFor(n *Notification) Payload {
	body := fmt.Sprintf("%d fotos às %s", n.Photos, n.TimeString)
	if n.Photos == 1 {
		body = fmt.Sprintf("1 foto às %s", n.TimeString)
	}
	if n.Advisory != "" {
		body += " (" + n.Advisory + ")"
	}
	return Payload{
		Title:    "Suas fotos estão prontas",
		Body:     body,
		Session:  n.Session,
		Photos:   n.Photos,
		Status:   n.Status,
		Advisory: n.Advisory,
	}
}

// topicFor names the push topic of a session, so a repeated push for the
// same photo set replaces the undelivered one while different sessions
// stack up.
func topicFor(session string) string {
	var b strings.Builder
	b.WriteString("photos-")
	for _, r := range session {
		if b.Len() == maxTopic {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WebPush delivers notifications to subscribed browsers.
type WebPush struct {
	// Key is generated on first startup and persisted in the database.
	Key *VAPIDKey

	// Subscriber is the contact address sent to push services.
	Subscriber string

	db *gorm.DB
}

func NewWebPush(db *gorm.DB, subscriber string) (*WebPush, error) {
	if err := db.AutoMigrate(&VAPIDKey{}, &Subscription{}); err != nil {
		return nil, err
	}
	p := &WebPush{
		Key:        &VAPIDKey{},
		Subscriber: subscriber,
		db:         db,
	}
	err := db.First(p.Key).Error
	switch {
	case err == nil:
		log.Infof("Web push VAPID keys loaded from database")
	case errors.Is(err, gorm.ErrRecordNotFound):
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, err
		}
		p.Key.Private = priv
		p.Key.Public = pub
		if err := db.Create(p.Key).Error; err != nil {
			return nil, err
		}
		log.Infof("Web push VAPID keys generated")
	default:
		return nil, fmt.Errorf("loading VAPID keys: %w", err)
	}
	return p, nil
}

// Subscribe registers sub, replacing any earlier registration of the same
// endpoint.
func (p *WebPush) Subscribe(ctx context.Context, peer string, sub *webpush.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	s := &Subscription{Endpoint: sub.Endpoint, Peer: peer, Raw: string(raw)}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"peer", "raw", "updated_at"}),
	}).Create(s).Error
}

func (p *WebPush) Unsubscribe(ctx context.Context, endpoint string) error {
	res := p.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&Subscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownSubscription
	}
	return nil
}

func (p *WebPush) Subscriptions(ctx context.Context) ([]*Subscription, error) {
	var subs []*Subscription
	err := p.db.WithContext(ctx).Find(&subs).Error
	return subs, err
}

func (p *WebPush) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/push_get_pubkey", p.handleGetPubkey)
	mux.HandleFunc("/push_get_subscriptions", p.handleGetSubscriptions)
	mux.HandleFunc("/push_subscribe", p.handleSubscribe)
	mux.HandleFunc("/push_unsubscribe", p.handleUnsubscribe)

	// Sends a sample "photos ready" push to every subscriber.
	mux.HandleFunc("/push_test", p.handleTest)
}

func (p *WebPush) handleGetPubkey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, p.Key.Public)
}

// readSubscription decodes the browser's PushSubscription from a POST body.
func readSubscription(w http.ResponseWriter, r *http.Request) *webpush.Subscription {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil
	}
	sub := &webpush.Subscription{}
	if err := json.NewDecoder(r.Body).Decode(sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	if sub.Endpoint == "" {
		http.Error(w, "subscription has no endpoint", http.StatusBadRequest)
		return nil
	}
	return sub
}

func (p *WebPush) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub := readSubscription(w, r)
	if sub == nil {
		return
	}
	if err := p.Subscribe(r.Context(), r.RemoteAddr, sub); err != nil {
		log.Errorf("Failed to store push subscription: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Infof("Added push subscription for peer %v", r.RemoteAddr)
}

func (p *WebPush) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sub := readSubscription(w, r)
	if sub == nil {
		return
	}
	err := p.Unsubscribe(r.Context(), sub.Endpoint)
	switch {
	case errors.Is(err, ErrUnknownSubscription):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		log.Errorf("Failed to remove push subscription: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		log.Infof("Removed push subscription for peer %v", r.RemoteAddr)
	}
}

func (p *WebPush) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := p.Subscriptions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(subs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (p *WebPush) handleTest(w http.ResponseWriter, r *http.Request) {
	n := &Notification{
		TimeString: time.Now().Format("3:04 PM"),
		Session:    "test",
		Photos:     4,
		Status:     "ok",
	}
	if err := p.Notify(n); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// send pushes one payload and records the outcome on s. Subscriptions the
// push service reports as gone are deleted.
func (p *WebPush) send(s *Subscription, payload []byte, topic string) error {
	var ws webpush.Subscription
	if err := json.Unmarshal([]byte(s.Raw), &ws); err != nil {
		return fmt.Errorf("subscription %d: %w", s.ID, err)
	}

	resp, err := webpush.SendNotification(payload, &ws, &webpush.Options{
		Subscriber:      p.Subscriber,
		VAPIDPublicKey:  p.Key.Public,
		VAPIDPrivateKey: p.Key.Private,
		TTL:             pushTTL,
		Urgency:         webpush.UrgencyHigh,
		Topic:           topic,
	})
	if resp != nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			log.Infof("Push service reports %v for peer %v, unsubscribing", resp.Status, s.Peer)
			return p.db.Delete(s).Error
		}
		if err == nil && resp.StatusCode >= 400 {
			err = fmt.Errorf("push service: %s", resp.Status)
		}
	}

	now := time.Now()
	if err != nil {
		log.Warnf("Web push to peer %v failed: %v", s.Peer, err)
		s.LastFailure = &now
		s.LastError = err.Error()
	} else {
		s.LastSuccess = &now
	}
	return p.db.Save(s).Error
}

// Notify sends the "photos ready" push for n to every subscriber.
func (p *WebPush) Notify(n *Notification) error {
	payload, err := json.Marshal(payloadFor(n))
	if err != nil {
		return err
	}
	subs, err := p.Subscriptions(context.Background())
	if err != nil {
		return err
	}

	topic := topicFor(n.Session)
	log.Infof("Pushing session %s to %d subscribers", n.Session, len(subs))
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			if err := p.send(s, payload, topic); err != nil {
				log.Errorf("Web push failed: %v", err)
			}
		}(s)
	}
	wg.Wait()
	return nil
}
