package cache

import (
	"container/list"
	"sync"
	"time"
)

// Store is an in-memory, TTL-aware, LRU-bounded cache keyed by
// (ResourceType, ID).
//
// Get returns the stored value itself, not a copy. Values are shared by
// every reader until the entry is replaced, so callers must not mutate them.
type Store struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	enabled bool
	entries map[Key]*list.Element // of *Entry
	lru     *list.List            // front = most recently used

	hits      uint64
	misses    uint64
	evictions uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store. The config is copied; later changes to the
// caller's TTLByType map have no effect.
func NewStore(config Config, opts ...StoreOption) *Store {
	s := &Store{
		config:  config.clone(),
		now:     time.Now,
		enabled: config.Enabled,
		entries: make(map[Key]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live value for (t, id). Missing, expired and
// disabled lookups count as misses.
func (s *Store) Get(t ResourceType, id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.misses++
		return nil, false
	}

	key := Key{Type: t, ID: id}
	elem, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(s.now()) {
		s.removeLocked(elem)
		s.misses++
		return nil, false
	}

	s.lru.MoveToFront(elem)
	s.hits++
	return entry.Value, true
}

// Set stores value under the TTL configured for t.
func (s *Store) Set(t ResourceType, id string, value any) {
	s.SetWithTTL(t, id, value, 0)
}

// SetWithTTL stores value with an explicit TTL; ttl <= 0 uses the
// configured TTL for t. At most one entry is evicted per call.
func (s *Store) SetWithTTL(t ResourceType, id string, value any, ttl time.Duration) {
	ttl = s.config.EffectiveTTL(t, ttl)
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}

	now := s.now()
	key := Key{Type: t, ID: id}
	entry := &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if elem, ok := s.entries[key]; ok {
		elem.Value = entry
		s.lru.MoveToFront(elem)
		return
	}

	s.entries[key] = s.lru.PushFront(entry)

	if s.config.MaxSize > 0 && len(s.entries) > s.config.MaxSize {
		if oldest := s.lru.Back(); oldest != nil {
			s.removeLocked(oldest)
			s.evictions++
		}
	}
}

// Invalidate removes the entry for (t, id). Idempotent.
func (s *Store) Invalidate(t ResourceType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[Key{Type: t, ID: id}]; ok {
		s.removeLocked(elem)
	}
}

// InvalidateType removes every entry of type t. Readers never observe a
// partially invalidated type.
func (s *Store) InvalidateType(t ResourceType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, elem := range s.entries {
		if key.Type == t {
			s.removeLocked(elem)
		}
	}
}

// Clear removes all entries and resets the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[Key]*list.Element)
	s.lru.Init()
	s.hits, s.misses, s.evictions = 0, 0, 0
}

// Sweep drops expired entries and returns how many were removed.
// Expired entries are otherwise removed lazily on access.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, elem := range s.entries {
		if elem.Value.(*Entry).Expired(now) {
			s.removeLocked(elem)
			removed++
		}
	}
	return removed
}

// Len returns the number of physically stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      len(s.entries),
	}
}

// Config returns the store configuration with the current Enabled flag.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.config.clone()
	cfg.Enabled = s.enabled
	return cfg
}

// Enabled reports whether caching is active.
func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles caching without dropping stored entries.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Store) removeLocked(elem *list.Element) {
	entry := s.lru.Remove(elem).(*Entry)
	delete(s.entries, entry.Key)
}

// Ensure Store implements Cache
var _ Cache = (*Store)(nil)
