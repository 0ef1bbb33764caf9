// Package store persists the finished photo set in a single named slot with
// a fixed byte budget.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"booth/metrics"
	"booth/video/process"
)

// ErrCapacityExceeded is returned when a value does not fit the slot budget.
var ErrCapacityExceeded = errors.New("storage capacity exceeded")

const (
	DefaultKey      = "photos"
	DefaultCapacity = 5 << 20

	dataURIPrefix = "data:image/jpeg;base64,"
)

// DefaultSchedule is tried in order when the full set does not fit. Each
// step is smaller than the previous one.
var DefaultSchedule = []process.StillOptions{
	{MaxEdge: 960, Quality: 60},
	{MaxEdge: 720, Quality: 50},
	{MaxEdge: 480, Quality: 40},
}

// Status tells how faithfully a photo set was stored.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusPartial  Status = "partial"
)

// Result describes a completed write.
type Result struct {
	Status Status
	Saved  int
	Bytes  int
}

// Record is the value held in the slot.
type Record struct {
	Photos  []string
	Status  Status    `json:",omitempty"`
	SavedAt time.Time `json:",omitempty"`
}

// Advisory returns the user-facing note for degraded sets, or "".
func (r Record) Advisory() string {
	switch r.Status {
	case StatusDegraded:
		return "fotos reduzidas"
	case StatusPartial:
		return "espaço insuficiente: apenas a primeira foto foi salva"
	}
	return ""
}

// Images decodes the stored data URIs back into encoded image bytes.
func (r Record) Images() ([][]byte, error) {
	out := make([][]byte, len(r.Photos))
	for i, uri := range r.Photos {
		b, err := DecodeDataURI(uri)
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// DataURI encodes JPEG bytes in data-URI form.
func DataURI(jpeg []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(jpeg)
}

// DecodeDataURI accepts any base64 image data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:image/") {
		return nil, errors.New("not an image data URI")
	}
	i := strings.Index(uri, ";base64,")
	if i < 0 {
		return nil, errors.New("data URI is not base64")
	}
	return base64.StdEncoding.DecodeString(uri[i+len(";base64,"):])
}

// PayloadSize is the number of bytes photos occupy in the slot budget: the
// JSON list of their data URIs.
func PayloadSize(photos [][]byte) int {
	b, _ := json.Marshal(dataURIs(photos))
	return len(b)
}

func dataURIs(photos [][]byte) []string {
	uris := make([]string, len(photos))
	for i, p := range photos {
		uris[i] = DataURI(p)
	}
	return uris
}

// Backend is a key/value store for slot contents. Get returns nil, nil for a
// missing key. Put may return ErrCapacityExceeded on its own.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Key      string
	Capacity int
	Schedule []process.StillOptions
}

// PhotoStore owns one named slot. Each write replaces the slot wholesale.
type PhotoStore struct {
	backend Backend
	opts    Options

	l sync.Mutex
}

func New(b Backend, o Options) *PhotoStore {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Schedule == nil {
		o.Schedule = DefaultSchedule
	}
	return &PhotoStore{backend: b, opts: o}
}

// Write stores photos, degrading them when they do not fit: every photo is
// re-encoded along the schedule, and if even the smallest step is too big
// only the first photo is kept. The user always proceeds with what was saved.
func (s *PhotoStore) Write(ctx context.Context, photos [][]byte) (Result, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if len(photos) == 0 {
		return Result{}, errors.New("no photos to store")
	}

	res, err := s.put(ctx, photos, StatusOK)
	if !errors.Is(err, ErrCapacityExceeded) {
		return s.done(res, err)
	}
	log.Warnf("Photo set of %d bytes exceeds the %d byte budget, reducing quality", PayloadSize(photos), s.opts.Capacity)

	var smallest [][]byte
	for _, step := range s.opts.Schedule {
		reduced, err := reencodeAll(photos, step)
		if err != nil {
			return s.done(Result{}, err)
		}
		smallest = reduced
		res, err = s.put(ctx, reduced, StatusDegraded)
		if !errors.Is(err, ErrCapacityExceeded) {
			return s.done(res, err)
		}
		log.Warnf("Reduced photo set (%dpx, q%d) still too big", step.MaxEdge, step.Quality)
	}
	if smallest == nil {
		smallest = photos
	}

	res, err = s.put(ctx, smallest[:1], StatusPartial)
	return s.done(res, err)
}

func (s *PhotoStore) done(res Result, err error) (Result, error) {
	if err != nil {
		metrics.StoreWrites.WithLabelValues("failed").Inc()
		return Result{}, err
	}
	metrics.StoreWrites.WithLabelValues(string(res.Status)).Inc()
	metrics.StoreBytes.Set(float64(res.Bytes))
	if res.Status != StatusOK {
		log.Warnf("Stored %d photos with status %s", res.Saved, res.Status)
	}
	return res, nil
}

func (s *PhotoStore) put(ctx context.Context, photos [][]byte, status Status) (Result, error) {
	if size := PayloadSize(photos); size > s.opts.Capacity {
		return Result{}, fmt.Errorf("%w: %d > %d bytes", ErrCapacityExceeded, size, s.opts.Capacity)
	}
	rec := Record{
		Photos:  dataURIs(photos),
		Status:  status,
		SavedAt: time.Now(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return Result{}, err
	}
	if err := s.backend.Put(ctx, s.opts.Key, b); err != nil {
		return Result{}, err
	}
	return Result{Status: status, Saved: len(photos), Bytes: len(b)}, nil
}

func reencodeAll(photos [][]byte, o process.StillOptions) ([][]byte, error) {
	out := make([][]byte, len(photos))
	for i, p := range photos {
		b, err := process.Reencode(p, o)
		if err != nil {
			return nil, fmt.Errorf("reencoding photo %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Read returns the slot contents; an empty record if nothing is stored.
func (s *PhotoStore) Read(ctx context.Context) (Record, error) {
	s.l.Lock()
	defer s.l.Unlock()
	b, err := s.backend.Get(ctx, s.opts.Key)
	if err != nil || b == nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt photo slot: %w", err)
	}
	return rec, nil
}

// Clear empties the slot.
func (s *PhotoStore) Clear(ctx context.Context) error {
	s.l.Lock()
	defer s.l.Unlock()
	metrics.StoreBytes.Set(0)
	return s.backend.Delete(ctx, s.opts.Key)
}
