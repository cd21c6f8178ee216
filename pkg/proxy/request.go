package proxy

import (
	"fmt"
	"io"
	"net/http"
)

// Distinguished headers the core reads from inbound requests.
const (
	// HeaderVaultToken carries the caller's auth token. It feeds the
	// cache key and the caching eligibility check.
	HeaderVaultToken = "X-Vault-Token"

	// HeaderVaultNamespace carries the optional namespace qualifier.
	// It feeds the cache key only.
	HeaderVaultNamespace = "X-Vault-Namespace"
)

// Request is the plain request value the core consumes. The router
// adapts its native request type to this value, keeping the cache and
// forwarding logic independent of any HTTP framework.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
	Cookies  []*http.Cookie
}

// FromHTTP adapts an *http.Request, draining its body.
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	return &Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
		Cookies:  r.Cookies(),
	}, nil
}

// Token returns the caller's auth token, empty if absent.
func (r *Request) Token() string {
	return r.Header.Get(HeaderVaultToken)
}

// Namespace returns the namespace qualifier, empty if absent.
func (r *Request) Namespace() string {
	return r.Header.Get(HeaderVaultNamespace)
}
