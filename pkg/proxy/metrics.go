package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the proxy request path.
var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_proxy_requests_total",
		Help: "Total proxied requests by cache status and HTTP status",
	}, []string{"cache_status", "status"})

	proxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_proxy_request_duration_seconds",
		Help:    "Proxied request duration in seconds by cache status",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"cache_status"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_proxy_upstream_errors_total",
		Help: "Total upstream call failures by class",
	}, []string{"class"})
)

// Cache status labels for proxyRequestsTotal.
const (
	cacheStatusHit    = "hit"
	cacheStatusMiss   = "miss"
	cacheStatusBypass = "bypass"
)
