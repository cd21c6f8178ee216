package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/secretcache/vault-proxy/pkg/logging"
)

// RefreshFunc produces a fresh response for a key, typically by
// forwarding the request upstream. Its error is propagated to the
// caller and never cached.
type RefreshFunc func() (*CachedResponse, error)

// Options configures a Store.
type Options struct {
	// TTL is how long a stored response stays fresh.
	TTL time.Duration

	// PurgeInterval bounds how often a full expired-entry sweep may run.
	PurgeInterval time.Duration

	// MaxEntries caps the store size; 0 means unbounded. When the cap
	// is reached, the least recently used quarter of entries is evicted.
	MaxEntries int
}

// Store is a TTL-keyed in-memory cache for upstream responses. It is
// safe for concurrent use by every request handler; construct one per
// proxy instance rather than sharing process-wide state.
//
// Concurrent misses for the same key are collapsed with singleflight so
// each key triggers at most one upstream fetch per miss window. The
// store mutex is never held across a refresh call.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	lastPurge time.Time

	ttl           time.Duration
	purgeInterval time.Duration
	maxEntries    int

	flight singleflight.Group
	logger zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	return &Store{
		entries:       make(map[string]*Entry),
		lastPurge:     time.Now(),
		ttl:           opts.TTL,
		purgeInterval: opts.PurgeInterval,
		maxEntries:    opts.MaxEntries,
		logger:        logging.NewLogger("cache"),
	}
}

// GetOrRefresh returns the cached response for key, fetching a fresh
// one via refresh when the key is absent or expired. A fresh response
// is stored with the configured TTL before being returned. Refresh
// failures propagate to the caller; stale data is never served in
// their place.
func (s *Store) GetOrRefresh(key string, refresh RefreshFunc) (*CachedResponse, error) {
	s.maybePurge()

	if resp, ok := s.lookup(key); ok {
		CacheHits.Inc()
		s.logger.Debug().Str("key", key).Msg("cache hit")
		return resp, nil
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		// A racing caller may have filled the entry while this one
		// queued for the flight.
		if resp, ok := s.lookup(key); ok {
			CacheHits.Inc()
			return resp, nil
		}

		CacheMisses.Inc()
		s.logger.Debug().Str("key", key).Msg("cache miss, refreshing")

		resp, err := refresh()
		if err != nil {
			CacheRefreshErrors.Inc()
			return nil, err
		}

		s.set(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*CachedResponse), nil
}

// Invalidate removes the entry for key, if any. Called when a write
// request for the same secret goes through the proxy, so the next read
// refetches instead of serving a stale value.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	_, existed := s.entries[key]
	delete(s.entries, key)
	n := len(s.entries)
	s.mu.Unlock()

	if existed {
		CacheInvalidations.Inc()
		CacheEntries.Set(float64(n))
		s.logger.Debug().Str("key", key).Msg("cache entry invalidated")
	}
}

// Len returns the current number of entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// lookup returns the live response for key. Expired entries are never
// returned; they stay in place for the refresh path to overwrite or the
// purge sweep to remove.
func (s *Store) lookup(key string) (*CachedResponse, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.IsExpired() {
		return nil, false
	}

	entry.touch()
	return entry.Value, true
}

// set stores a fresh entry for key, evicting LRU entries first when the
// store is at capacity. Last write wins for concurrent sets.
func (s *Store) set(key string, value *CachedResponse) {
	s.mu.Lock()

	if _, exists := s.entries[key]; !exists {
		s.evictIfFull()
	}
	s.entries[key] = newEntry(value, s.ttl)
	n := len(s.entries)

	s.mu.Unlock()

	CacheEntries.Set(float64(n))
}

// evictIfFull removes the least recently used quarter of entries when
// the store has reached MaxEntries. Caller must hold the write lock.
func (s *Store) evictIfFull() {
	if s.maxEntries <= 0 || len(s.entries) < s.maxEntries {
		return
	}

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return s.entries[keys[i]].lastUsed.Load() < s.entries[keys[j]].lastUsed.Load()
	})

	evict := len(keys) / 4
	if evict < 1 {
		evict = 1
	}
	for _, key := range keys[:evict] {
		delete(s.entries, key)
	}

	CacheEvictedEntries.Add(float64(evict))
	s.logger.Warn().
		Int("evicted", evict).
		Int("max_entries", s.maxEntries).
		Msg("cache full, evicted least recently used entries")
}

// maybePurge runs a full expired-entry sweep if the purge interval has
// elapsed since the last one. The sweep is two-phase: the removal set
// is collected before any delete is applied. Holding the write lock for
// the whole sweep means sweeps never run concurrently and lastPurge
// only moves forward.
func (s *Store) maybePurge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastPurge) < s.purgeInterval {
		return
	}

	expired := make([]string, 0)
	for key, entry := range s.entries {
		if entry.IsExpired() {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(s.entries, key)
	}

	s.lastPurge = now

	CachePurgedEntries.Add(float64(len(expired)))
	CacheEntries.Set(float64(len(s.entries)))
	s.logger.Info().
		Int("purged", len(expired)).
		Int("remaining", len(s.entries)).
		Msg("cache purge sweep complete")
}
