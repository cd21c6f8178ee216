// Package cache provides the TTL cache sitting between the proxy and
// the Vault key/value secrets engine.
//
// The store keeps whole upstream responses in memory, keyed by a
// SHA-256 digest of the caller's auth token, namespace, and request
// path. Features:
//
// - TTL expiration with an interval-bounded full purge sweep
// - Singleflight refresh (one upstream fetch per key per miss window)
// - Write-path invalidation so updated secrets are not served stale
// - LRU capacity eviction to bound memory
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(cache.Options{
//		TTL:           60 * time.Second,
//		PurgeInterval: 10 * time.Minute,
//		MaxEntries:    4096,
//	})
//
//	keys := cache.NewKeyBuilder()
//	key := keys.Build(token, namespace, "/v1/kv/app/db-password")
//
//	resp, err := store.GetOrRefresh(key, func() (*cache.CachedResponse, error) {
//		// Forward to Vault and return the response.
//		return forwarder.Forward(ctx, req)
//	})
//
// # Metrics
//
// The store exports Prometheus metrics:
//
//   - vault_proxy_cache_hits_total - Requests served from cache
//   - vault_proxy_cache_misses_total - Misses that fetched upstream
//   - vault_proxy_cache_refresh_errors_total - Failed refresh fetches
//   - vault_proxy_cache_entries - Current entry count
//   - vault_proxy_cache_purged_entries_total - Entries removed by purge sweeps
//   - vault_proxy_cache_evicted_entries_total - Entries removed by LRU eviction
//   - vault_proxy_cache_invalidations_total - Entries removed by writes
//
// # Staleness and consistency
//
// An expired entry is never returned to a caller; reads either refresh
// it in place or fail with the refresh error. The purge sweep removes
// only strictly-expired entries, at most once per purge interval, and
// computes its removal set before deleting anything.
package cache
