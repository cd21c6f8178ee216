package proxy

import (
	"net/http"
	"strings"
)

// Classifier decides whether a request is eligible for caching.
//
// This is the single place where caching eligibility rules live. Today
// the policy is: read method, path under a key/value secrets-engine
// prefix, token present. Future engines with other cacheable path
// patterns extend the prefix list here, nowhere else.
type Classifier struct {
	prefixes []string
}

// NewClassifier creates a classifier for the given cacheable path
// prefixes (e.g. "/v1/kv/").
func NewClassifier(prefixes []string) Classifier {
	return Classifier{prefixes: prefixes}
}

// IsCacheable returns true iff the method is a read, the path targets a
// key/value secrets engine, and a non-empty token is present.
func (c Classifier) IsCacheable(method, path, token string) bool {
	return method == http.MethodGet && token != "" && c.HasCacheablePath(path)
}

// HasCacheablePath returns true if the path contains one of the
// configured secrets-engine prefixes.
func (c Classifier) HasCacheablePath(path string) bool {
	for _, prefix := range c.prefixes {
		if strings.Contains(path, prefix) {
			return true
		}
	}
	return false
}

// IsWrite returns true for methods that mutate secrets. Writes against
// a cacheable path invalidate the cached entry for that key.
func (c Classifier) IsWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
