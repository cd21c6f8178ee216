package cache

import (
	"net/http"
	"sync/atomic"
	"time"
)

// CachedResponse is the payload stored for a cacheable request: the
// upstream status code, headers, and body. It is produced once per
// upstream fetch and never mutated afterwards.
type CachedResponse struct {
	// StatusCode is the HTTP status code of the upstream response.
	StatusCode int

	// Header holds the upstream response headers, hop-by-hop headers
	// already stripped by the forwarder.
	Header http.Header

	// Body is the raw response body.
	Body []byte
}

// Entry pairs a cached response with its expiry. Entries are owned
// exclusively by the Store.
type Entry struct {
	// Value is the cached response.
	Value *CachedResponse

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time

	// lastUsed is the last hit time in Unix milliseconds. It drives
	// least-recently-used eviction when the store is at capacity.
	lastUsed atomic.Int64
}

// newEntry creates an entry expiring ttl from now.
func newEntry(value *CachedResponse, ttl time.Duration) *Entry {
	e := &Entry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
	e.touch()
	return e
}

// IsExpired returns true if the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration. Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// touch records a hit for LRU accounting.
func (e *Entry) touch() {
	e.lastUsed.Store(time.Now().UnixMilli())
}
