package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks requests served from the store without an
	// upstream fetch.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_hits_total",
			Help: "Total number of requests served from the cache",
		},
	)

	// CacheMisses tracks refreshes triggered by missing or expired entries.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_misses_total",
			Help: "Total number of cache misses that triggered an upstream fetch",
		},
	)

	// CacheRefreshErrors tracks upstream fetches that failed on the
	// refresh path. Failed refreshes are never cached.
	CacheRefreshErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_refresh_errors_total",
			Help: "Total number of failed refresh fetches",
		},
	)

	// CacheEntries tracks the current number of live entries.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_proxy_cache_entries",
			Help: "Current number of entries in the cache",
		},
	)

	// CachePurgedEntries tracks entries removed by the interval purge sweep.
	CachePurgedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_purged_entries_total",
			Help: "Total number of expired entries removed by purge sweeps",
		},
	)

	// CacheEvictedEntries tracks entries removed by LRU capacity eviction.
	CacheEvictedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_evicted_entries_total",
			Help: "Total number of entries evicted because the cache was full",
		},
	)

	// CacheInvalidations tracks entries removed because a write went
	// through the proxy for the same secret.
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_proxy_cache_invalidations_total",
			Help: "Total number of entries invalidated by write requests",
		},
	)
)
