package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/secretcache/vault-proxy/pkg/cache"
	"github.com/secretcache/vault-proxy/pkg/logging"
)

// HealthPath is served locally with a fixed body, bypassing cache and
// upstream entirely.
const HealthPath = "/z/ping"

const healthBody = "Ok!"

// Handler is the per-request orchestrator: it classifies each inbound
// request and routes it through the cache or straight to the
// forwarder. The shared cache store is the only cross-request state.
type Handler struct {
	classifier Classifier
	keys       cache.KeyBuilder
	store      *cache.Store
	forwarder  *Forwarder
	logger     zerolog.Logger
}

// NewHandler creates the proxy handler. The store is injected rather
// than global so tests can construct independent instances.
func NewHandler(store *cache.Store, forwarder *Forwarder, classifier Classifier) *Handler {
	return &Handler{
		classifier: classifier,
		keys:       cache.NewKeyBuilder(),
		store:      store,
		forwarder:  forwarder,
		logger:     logging.NewLogger("proxy"),
	}
}

// ServeHTTP serves all proxied traffic.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := FromHTTP(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if req.Path == HealthPath {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, healthBody)
		return
	}

	resp, cacheStatus, err := h.dispatch(r.Context(), req)
	if err != nil {
		status := h.writeUpstreamError(w, err)
		proxyRequestsTotal.WithLabelValues(cacheStatus, strconv.Itoa(status)).Inc()
		return
	}

	writeResponse(w, resp)

	proxyRequestsTotal.WithLabelValues(cacheStatus, strconv.Itoa(resp.StatusCode)).Inc()
	proxyRequestDuration.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())

	h.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("cache_status", cacheStatus).
		Int("status_code", resp.StatusCode).
		Msg("request served")
}

// dispatch runs the linear per-request decision tree: cacheable reads
// through the store, writes against cacheable paths invalidate, and
// everything else forwards directly.
func (h *Handler) dispatch(ctx context.Context, req *Request) (*cache.CachedResponse, string, error) {
	token := req.Token()

	if h.classifier.IsCacheable(req.Method, req.Path, token) {
		key := h.keys.Build(token, req.Namespace(), req.Path)

		fetched := false
		resp, err := h.store.GetOrRefresh(key, func() (*cache.CachedResponse, error) {
			fetched = true
			return h.forwarder.Forward(ctx, req)
		})

		cacheStatus := cacheStatusHit
		if fetched {
			cacheStatus = cacheStatusMiss
		}
		return resp, cacheStatus, err
	}

	// A write going through the proxy supersedes the cached read for
	// the same secret.
	if h.classifier.IsWrite(req.Method) && h.classifier.HasCacheablePath(req.Path) {
		h.store.Invalidate(h.keys.Build(token, req.Namespace(), req.Path))
	}

	resp, err := h.forwarder.Forward(ctx, req)
	return resp, cacheStatusBypass, err
}

// writeUpstreamError maps a forwarding failure onto a gateway status
// and returns the status written.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) int {
	status := http.StatusBadGateway

	var upErr *UpstreamError
	if errors.As(err, &upErr) && upErr.Class == ErrorClassTimeout {
		status = http.StatusGatewayTimeout
	}

	h.logger.Error().Err(err).Int("status_code", status).Msg("upstream failure")
	http.Error(w, http.StatusText(status), status)
	return status
}

// writeResponse writes a cached or forwarded response back out.
func writeResponse(w http.ResponseWriter, resp *cache.CachedResponse) {
	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
