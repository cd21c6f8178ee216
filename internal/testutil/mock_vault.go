// Package testutil provides testing utilities for the vault proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockVaultResponse defines the behavior for a mock Vault endpoint.
type MockVaultResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockVault is a configurable mock Vault server for testing.
type MockVault struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestMethod string
	LastRequestHeader http.Header
}

// NewMockVault creates a new mock Vault server.
func NewMockVault() *MockVault {
	mock := &MockVault{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestMethod = r.Method
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockVault) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockVault) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockVault) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestMethod = ""
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockVault) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockVault) SetResponse(path string, resp MockVaultResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockVault) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler provides a default KV-style response.
func (m *MockVault) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"request_id":"mock","data":{"value":"s3cr3t"}}`))
}

// NewSecretResponse creates a standard 200 OK KV secret response.
func NewSecretResponse(data string) MockVaultResponse {
	return MockVaultResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewSealedResponse creates a 503 response as Vault returns when sealed.
func NewSealedResponse() MockVaultResponse {
	return MockVaultResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"errors":["Vault is sealed"]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
