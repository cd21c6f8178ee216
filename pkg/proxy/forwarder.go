package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/secretcache/vault-proxy/pkg/cache"
	"github.com/secretcache/vault-proxy/pkg/logging"
)

// hopByHopHeaders describe the upstream transport leg and are invalid
// or stale once the proxy re-serves the response, so the forwarder
// strips them. The transport layer recomputes framing on the way out.
var hopByHopHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
}

// Forwarder performs the actual upstream call. It resolves inbound
// paths against a configured upstream base URL, so proxy and upstream
// need not share a host. No retry or backoff: failures propagate to
// the caller as *UpstreamError.
type Forwarder struct {
	upstream *url.URL
	client   *http.Client
	logger   zerolog.Logger
}

// NewForwarder creates a forwarder for the given upstream base URL.
// Every upstream call is bounded by timeout.
func NewForwarder(upstreamURL string, timeout time.Duration) (*Forwarder, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute (got %q)", upstreamURL)
	}

	return &Forwarder{
		upstream: u,
		client: &http.Client{
			Timeout: timeout,
			// Redirects pass through to the original caller untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logging.NewLogger("forwarder"),
	}, nil
}

// Forward sends req to the upstream and returns the response with
// hop-by-hop headers stripped.
func (f *Forwarder) Forward(ctx context.Context, req *Request) (*cache.CachedResponse, error) {
	target := f.upstream.ResolveReference(&url.URL{Path: req.Path, RawQuery: req.RawQuery})

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	// Copy headers except Host; the transport sets the new host. The
	// Cookie header is rebuilt from the cookie collection below.
	for name, values := range req.Header {
		if name == "Host" || name == "Cookie" {
			continue
		}
		for _, value := range values {
			out.Header.Add(name, value)
		}
	}
	for _, c := range req.Cookies {
		out.AddCookie(c)
	}

	resp, err := f.client.Do(out)
	if err != nil {
		upErr := classifyUpstreamError(err, target.Host)
		upstreamErrorsTotal.WithLabelValues(string(upErr.Class)).Inc()
		f.logger.Error().
			Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Str("error_class", string(upErr.Class)).
			Msg("upstream request failed")
		return nil, upErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		upErr := classifyUpstreamError(err, target.Host)
		upstreamErrorsTotal.WithLabelValues(string(upErr.Class)).Inc()
		return nil, upErr
	}

	header := resp.Header.Clone()
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}

	f.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status_code", resp.StatusCode).
		Msg("forwarded upstream")

	return &cache.CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}
