// Package metrics provides the central Prometheus registry reference
// for the vault proxy. All metrics are defined in their owning packages
// (cache, proxy, ratelimit) to keep them next to the code they measure.
//
// This package documents every metric the proxy exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer the proxy publishes to. All
// metrics register automatically via promauto in their own packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - vault_proxy_cache_hits_total (Counter): Requests served from the in-memory cache
//   - vault_proxy_cache_misses_total (Counter): Cache-eligible requests that required an upstream fetch
//   - vault_proxy_cache_refresh_errors_total (Counter): Upstream fetches that failed during a cache refresh
//   - vault_proxy_cache_entries (Gauge): Current number of cached responses
//   - vault_proxy_cache_purged_entries_total (Counter): Expired entries removed by purge sweeps
//   - vault_proxy_cache_evicted_entries_total (Counter): Entries dropped by capacity eviction
//   - vault_proxy_cache_invalidations_total (Counter): Entries dropped after a write to their path
//
// Request Metrics (pkg/proxy):
//   - vault_proxy_requests_total{cache_status, status} (Counter): Proxied requests by cache outcome and HTTP status
//   - vault_proxy_request_duration_seconds{cache_status} (Histogram): Request duration by cache outcome
//   - vault_proxy_upstream_errors_total{class} (Counter): Upstream failures by class (timeout, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - vault_proxy_ratelimit_rejected_total (Counter): Requests rejected with 429
//   - vault_proxy_ratelimit_active_limiters (Gauge): Currently tracked per-token limiters
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(vault_proxy_cache_hits_total[5m])) /
//   (sum(rate(vault_proxy_cache_hits_total[5m])) + sum(rate(vault_proxy_cache_misses_total[5m])))
//
//   # Upstream Failure Rate
//   rate(vault_proxy_upstream_errors_total[5m])
//
//   # P95 Request Latency for Cache Misses
//   histogram_quantile(0.95, rate(vault_proxy_request_duration_seconds_bucket{cache_status="miss"}[5m]))
//
//   # Rejection Pressure per Token Population
//   rate(vault_proxy_ratelimit_rejected_total[5m])
