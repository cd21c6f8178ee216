package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/secretcache/vault-proxy/internal/testutil"
	"github.com/secretcache/vault-proxy/pkg/cache"
)

func newTestHandler(t *testing.T, mock *testutil.MockVault, ttl time.Duration) *Handler {
	t.Helper()

	store := cache.NewStore(cache.Options{
		TTL:           ttl,
		PurgeInterval: time.Hour,
	})

	forwarder, err := NewForwarder(mock.URL(), 5*time.Second)
	if err != nil {
		t.Fatalf("NewForwarder failed: %v", err)
	}

	return NewHandler(store, forwarder, NewClassifier([]string{"/v1/kv/"}))
}

func doRequest(h *Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(HeaderVaultToken, token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_HealthCheck(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	w := doRequest(h, http.MethodGet, HealthPath, "")

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "Ok!" {
		t.Errorf("body = %q, want Ok!", string(body))
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("upstream requests = %d, want 0 (health bypasses upstream)", mock.GetRequestCount())
	}
}

func TestHandler_CacheableRead(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	mock.SetResponse("/v1/kv/secret1", testutil.NewSecretResponse(`{"data":{"value":"one"}}`))

	h := newTestHandler(t, mock, time.Minute)

	// First call fetches upstream and caches
	w1 := doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	if w1.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w1.Code)
	}
	if mock.GetRequestCount() != 1 {
		t.Fatalf("upstream requests = %d, want 1", mock.GetRequestCount())
	}

	// Second call within TTL is served from cache, byte-identical
	w2 := doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1 (second call cached)", mock.GetRequestCount())
	}
	if w1.Body.String() != w2.Body.String() {
		t.Errorf("cached body %q differs from original %q", w2.Body.String(), w1.Body.String())
	}
}

func TestHandler_CacheExpiry(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	mock.SetResponse("/v1/kv/secret1", testutil.NewSecretResponse(`{"data":{"value":"one"}}`))

	h := newTestHandler(t, mock, 30*time.Millisecond)

	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	if mock.GetRequestCount() != 1 {
		t.Fatalf("upstream requests = %d, want 1", mock.GetRequestCount())
	}

	time.Sleep(50 * time.Millisecond)

	// TTL elapsed: exactly one new fetch
	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	if mock.GetRequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2 after TTL", mock.GetRequestCount())
	}
}

func TestHandler_TokensGetSeparateEntries(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok2")

	if mock.GetRequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2 (one per token)", mock.GetRequestCount())
	}
}

func TestHandler_NamespacesGetSeparateEntries(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	req1 := httptest.NewRequest(http.MethodGet, "/v1/kv/secret1", nil)
	req1.Header.Set(HeaderVaultToken, "tok1")
	req1.Header.Set(HeaderVaultNamespace, "tenant-a")
	h.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/v1/kv/secret1", nil)
	req2.Header.Set(HeaderVaultToken, "tok1")
	req2.Header.Set(HeaderVaultNamespace, "tenant-b")
	h.ServeHTTP(httptest.NewRecorder(), req2)

	if mock.GetRequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2 (one per namespace)", mock.GetRequestCount())
	}
}

func TestHandler_WritesAreNeverCached(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	// POST forwarded on every call, never cached
	doRequest(h, http.MethodPost, "/v1/kv/secret1", "tok1")
	doRequest(h, http.MethodPost, "/v1/kv/secret1", "tok1")

	if mock.GetRequestCount() != 2 {
		t.Errorf("upstream requests = %d, want 2 (writes bypass cache)", mock.GetRequestCount())
	}
}

func TestHandler_WriteInvalidatesCachedRead(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1") // cache fill
	doRequest(h, http.MethodPost, "/v1/kv/secret1", "tok1")
	doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1") // must refetch

	if mock.GetRequestCount() != 3 {
		t.Errorf("upstream requests = %d, want 3 (write invalidated the entry)", mock.GetRequestCount())
	}
}

func TestHandler_UncacheableRequests(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	h := newTestHandler(t, mock, time.Minute)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"no token", http.MethodGet, "/v1/kv/secret1", ""},
		{"path outside kv engine", http.MethodGet, "/v1/sys/health", "tok1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.Reset()

			// Each request independently invokes the forwarder
			doRequest(h, tt.method, tt.path, tt.token)
			doRequest(h, tt.method, tt.path, tt.token)

			if mock.GetRequestCount() != 2 {
				t.Errorf("upstream requests = %d, want 2 (uncacheable)", mock.GetRequestCount())
			}
		})
	}
}

func TestHandler_ConcurrentReadsSameKey(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	mock.SetResponse("/v1/kv/secret1", testutil.MockVaultResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":{"value":"shared"}}`,
		Delay:      10 * time.Millisecond,
	})

	h := newTestHandler(t, mock, time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	codes := make([]int, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("caller %d status = %d, want 200", i, code)
		}
	}

	// Deduplicated misses: a single upstream fetch for all racers
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestHandler_UpstreamUnreachable(t *testing.T) {
	store := cache.NewStore(cache.Options{TTL: time.Minute, PurgeInterval: time.Hour})
	forwarder, err := NewForwarder("http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatalf("NewForwarder failed: %v", err)
	}
	h := NewHandler(store, forwarder, NewClassifier([]string{"/v1/kv/"}))

	w := doRequest(h, http.MethodGet, "/v1/kv/secret1", "tok1")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHandler_UpstreamTimeout(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	mock.SetResponse("/v1/kv/slow", testutil.MockVaultResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})

	store := cache.NewStore(cache.Options{TTL: time.Minute, PurgeInterval: time.Hour})
	forwarder, err := NewForwarder(mock.URL(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewForwarder failed: %v", err)
	}
	h := NewHandler(store, forwarder, NewClassifier([]string{"/v1/kv/"}))

	w := doRequest(h, http.MethodGet, "/v1/kv/slow", "tok1")
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

func TestHandler_ErrorsAreNotCached(t *testing.T) {
	mock := testutil.NewMockVault()
	defer mock.Close()

	var mu sync.Mutex
	calls := 0
	mock.SetHandler("/v1/kv/flaky", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			// Simulate a dropped connection on the first call
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("recorder does not support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"data":{"value":"recovered"}}`)
	})

	h := newTestHandler(t, mock, time.Minute)

	w1 := doRequest(h, http.MethodGet, "/v1/kv/flaky", "tok1")
	if w1.Code != http.StatusBadGateway {
		t.Fatalf("first call status = %d, want 502", w1.Code)
	}

	// The failure was not cached: the next call fetches fresh data
	w2 := doRequest(h, http.MethodGet, "/v1/kv/flaky", "tok1")
	if w2.Code != http.StatusOK {
		t.Fatalf("second call status = %d, want 200", w2.Code)
	}
	if !strings.Contains(w2.Body.String(), "recovered") {
		t.Errorf("second call body = %q, want recovered value", w2.Body.String())
	}
}
