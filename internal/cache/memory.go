package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/omnipreview/internal/events"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
)

// DefaultMaxEntries bounds a MemoryStore created without WithMaxEntries.
const DefaultMaxEntries = 512

const (
	reasonRemoved = "removed"
	reasonEvicted = "evicted"
	reasonExpired = "expired"
)

// MemoryStore is an in-process, size-bounded Store. The least recently used
// entry is evicted once MaxEntries is reached.
type MemoryStore struct {
	mu       sync.Mutex
	entries  *lru.Cache
	bus      *events.Bus
	recorder metrics.Recorder
	now      func() time.Time

	// reason and removed are only touched while mu is held; the LRU calls
	// onEvict synchronously from the operation that caused the removal.
	reason  string
	removed []events.EntryRemoved
}

// Option configures a MemoryStore.
type Option func(*memoryOptions)

type memoryOptions struct {
	maxEntries int
	bus        *events.Bus
	recorder   metrics.Recorder
	now        func() time.Time
}

// WithMaxEntries bounds the number of cached fragments.
func WithMaxEntries(n int) Option {
	return func(o *memoryOptions) { o.maxEntries = n }
}

// WithBus publishes EntryUpdated / EntryRemoved notifications on bus.
func WithBus(bus *events.Bus) Option {
	return func(o *memoryOptions) { o.bus = bus }
}

// WithRecorder reports the entry count to a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *memoryOptions) { o.recorder = r }
}

// WithClock overrides the time source used for UpdatedAt and Prune.
func WithClock(now func() time.Time) Option {
	return func(o *memoryOptions) { o.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) (*MemoryStore, error) {
	o := memoryOptions{maxEntries: DefaultMaxEntries, recorder: metrics.NoopRecorder{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxEntries <= 0 {
		return nil, ferrors.ValidationError("cache max entries must be > 0").
			WithContext("max_entries", o.maxEntries).
			Build()
	}
	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}

	s := &MemoryStore{bus: o.bus, recorder: o.recorder, now: o.now}
	entries, err := lru.NewWithEvict(o.maxEntries, s.onEvict)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCache, "failed to create LRU").Build()
	}
	s.entries = entries
	return s, nil
}

func (s *MemoryStore) onEvict(key, _ interface{}) {
	id, _ := key.(string)
	s.removed = append(s.removed, events.EntryRemoved{DocumentID: id, Reason: s.reason})
}

// SetEntry stores entry under id, stamping its fingerprint and write time.
func (s *MemoryStore) SetEntry(id string, entry Entry) error {
	if id == "" {
		return ferrors.ValidationError("document id is required").Build()
	}
	entry.Fingerprint = Fingerprint(entry.HTMLPart)
	entry.UpdatedAt = s.now()

	s.mu.Lock()
	s.reason = reasonEvicted
	s.entries.Add(id, entry)
	removed := s.flushRemovedLocked()
	n := s.entries.Len()
	s.mu.Unlock()

	s.recorder.SetCacheEntries(n)
	s.publishRemoved(removed)
	s.bus.TryPublish(events.EntryUpdated{
		DocumentID:  id,
		Filename:    entry.Filename,
		Fingerprint: entry.Fingerprint,
		UpdatedAt:   entry.UpdatedAt,
	})
	return nil
}

// Exists reports whether a fragment is cached for id without touching recency.
func (s *MemoryStore) Exists(id string) bool {
	return s.entries.Contains(id)
}

// Get returns the cached fragment for id and marks it recently used.
func (s *MemoryStore) Get(id string) (Entry, bool) {
	v, ok := s.entries.Get(id)
	if !ok {
		return Entry{}, false
	}
	entry, ok := v.(Entry)
	return entry, ok
}

// Remove drops the fragment for id.
func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	s.reason = reasonRemoved
	present := s.entries.Remove(id)
	removed := s.flushRemovedLocked()
	n := s.entries.Len()
	s.mu.Unlock()

	s.recorder.SetCacheEntries(n)
	s.publishRemoved(removed)
	return present
}

// Keys returns the cached document IDs, oldest first.
func (s *MemoryStore) Keys() []string {
	raw := s.entries.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if id, ok := k.(string); ok {
			keys = append(keys, id)
		}
	}
	return keys
}

func (s *MemoryStore) Len() int {
	return s.entries.Len()
}

// Prune removes entries whose last write is older than maxAge.
func (s *MemoryStore) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	s.reason = reasonExpired
	pruned := 0
	for _, k := range s.entries.Keys() {
		v, ok := s.entries.Peek(k)
		if !ok {
			continue
		}
		if entry, ok := v.(Entry); ok && entry.UpdatedAt.Before(cutoff) {
			s.entries.Remove(k)
			pruned++
		}
	}
	removed := s.flushRemovedLocked()
	n := s.entries.Len()
	s.mu.Unlock()

	s.recorder.SetCacheEntries(n)
	s.publishRemoved(removed)
	return pruned
}

func (s *MemoryStore) flushRemovedLocked() []events.EntryRemoved {
	removed := s.removed
	s.removed = nil
	return removed
}

func (s *MemoryStore) publishRemoved(removed []events.EntryRemoved) {
	for _, evt := range removed {
		s.bus.TryPublish(evt)
	}
}

// Fingerprint returns the content fingerprint used as the entry's ETag and
// live-reload hash.
func Fingerprint(html string) string {
	return mdfp.CalculateFingerprintFromParts("", html)
}
