// Package ratelimit gates proxied traffic per auth token with
// token-bucket limiters, protecting the upstream secrets engine from a
// single noisy caller.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/secretcache/vault-proxy/pkg/logging"
	"github.com/secretcache/vault-proxy/pkg/proxy"
)

// Prometheus metrics for per-token rate limiting.
var (
	rateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_proxy_ratelimit_rejected_total",
		Help: "Total requests rejected with 429 by the per-token rate limiter",
	})

	rateLimitActiveLimiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_proxy_ratelimit_active_limiters",
		Help: "Current number of tracked per-token limiters",
	})
)

// Tokens are hashed before use as map keys so raw secrets never sit in
// limiter state. The pepper keeps limiter keys disjoint from cache keys
// built over the same token.
const (
	tokenHashPrefix = "ratelimit."
	tokenHashSuffix = ".visitor"
)

// Options configures the per-token limiter.
type Options struct {
	// BurstPerSecond caps short spikes from one token.
	BurstPerSecond int

	// PerMinute is the sustained request budget per token.
	PerMinute int

	// BucketSize is the sustained limiter's bucket depth.
	BucketSize int

	// MaxLimiters caps tracked tokens; 0 means unbounded. At capacity
	// the least recently seen quarter is dropped.
	MaxLimiters int

	// IdleExpiry drops limiters for tokens not seen this long.
	IdleExpiry time.Duration

	// PurgeInterval bounds how often idle limiters are swept.
	PurgeInterval time.Duration
}

// DefaultOptions returns a safe default limiter configuration.
func DefaultOptions() Options {
	return Options{
		BurstPerSecond: 10,
		PerMinute:      300,
		BucketSize:     50,
		MaxLimiters:    4096,
		IdleExpiry:     2 * time.Minute,
		PurgeInterval:  time.Minute,
	}
}

// visitor holds the limiter pair for one token and the last time it
// was seen.
type visitor struct {
	limiters []*rate.Limiter
	lastUsed time.Time
}

// allow consumes one event from every limiter in the pair.
func (v *visitor) allow() bool {
	for _, l := range v.limiters {
		if !l.Allow() {
			return false
		}
	}
	return true
}

// Limiter tracks one token-bucket pair per auth token.
type Limiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPurge time.Time
	opts      Options
	logger    zerolog.Logger
}

// New creates a per-token rate limiter.
func New(opts Options) *Limiter {
	return &Limiter{
		visitors:  make(map[string]*visitor),
		lastPurge: time.Now(),
		opts:      opts,
		logger:    logging.NewLogger("ratelimit"),
	}
}

// Allow reports whether a request from token may proceed, consuming
// one event from its limiters.
func (l *Limiter) Allow(token string) bool {
	l.maybePurge()

	key := hashToken(token)

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		l.evictIfFull()
		v = &visitor{
			limiters: []*rate.Limiter{
				rate.NewLimiter(Per(l.opts.BurstPerSecond, time.Second), l.opts.BurstPerSecond),
				rate.NewLimiter(Per(l.opts.PerMinute, time.Minute), l.opts.BucketSize),
			},
		}
		l.visitors[key] = v
	}
	v.lastUsed = time.Now()
	n := len(l.visitors)
	l.mu.Unlock()

	rateLimitActiveLimiters.Set(float64(n))

	allowed := v.allow()
	if !allowed {
		rateLimitRejectedTotal.Inc()
		l.logger.Warn().Str("key", key).Msg("token over rate limit")
	}
	return allowed
}

// Middleware rejects over-limit requests with 429 before they reach
// the proxy handler. The health path bypasses limiting.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != proxy.HealthPath && !l.Allow(r.Header.Get(proxy.HeaderVaultToken)) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len returns the number of tracked limiters.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Per converts "eventCount per duration" into a rate.Limit.
func Per(eventCount int, duration time.Duration) rate.Limit {
	return rate.Every(duration / time.Duration(eventCount))
}

// hashToken digests a raw token into a limiter key.
func hashToken(token string) string {
	h := sha256.New()
	h.Write([]byte(tokenHashPrefix))
	h.Write([]byte(token))
	h.Write([]byte(tokenHashSuffix))
	return hex.EncodeToString(h.Sum(nil))
}

// evictIfFull drops the least recently seen quarter of limiters when
// at capacity. Caller must hold the lock.
func (l *Limiter) evictIfFull() {
	if l.opts.MaxLimiters <= 0 || len(l.visitors) < l.opts.MaxLimiters {
		return
	}

	keys := make([]string, 0, len(l.visitors))
	for key := range l.visitors {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return l.visitors[keys[i]].lastUsed.Before(l.visitors[keys[j]].lastUsed)
	})

	evict := len(keys) / 4
	if evict < 1 {
		evict = 1
	}
	for _, key := range keys[:evict] {
		delete(l.visitors, key)
	}

	l.logger.Warn().
		Int("evicted", evict).
		Int("max_limiters", l.opts.MaxLimiters).
		Msg("limiter cache full, dropped least recently seen tokens")
}

// maybePurge sweeps idle limiters when the purge interval has elapsed.
// Dropping a limiter resets its token's budget, so the sweep only
// removes tokens idle past IdleExpiry.
func (l *Limiter) maybePurge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPurge) < l.opts.PurgeInterval {
		return
	}

	idle := make([]string, 0)
	for key, v := range l.visitors {
		if now.Sub(v.lastUsed) > l.opts.IdleExpiry {
			idle = append(idle, key)
		}
	}
	for _, key := range idle {
		delete(l.visitors, key)
	}

	l.lastPurge = now

	rateLimitActiveLimiters.Set(float64(len(l.visitors)))
	l.logger.Info().
		Int("purged", len(idle)).
		Int("remaining", len(l.visitors)).
		Msg("idle limiter purge complete")
}
