package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// keyPrefix marks cache keys produced by this builder, mostly for
// debuggability in logs and metrics labels.
const keyPrefix = "vp:"

// KeyBuilder derives stable cache keys from request identity: the
// caller's auth token, optional namespace, and resource path.
//
// Keys are a SHA-256 digest of the three fields. Tokens are secrets, so
// a collision under a weak digest would hand one caller's cached secret
// to another; a cryptographic digest makes that infeasible and keeps
// raw tokens out of the key space entirely.
type KeyBuilder struct{}

// NewKeyBuilder creates a key builder.
func NewKeyBuilder() KeyBuilder {
	return KeyBuilder{}
}

// Build derives the cache key for token, namespace, and path. Token and
// namespace may be empty. Same inputs always yield the same key.
func (KeyBuilder) Build(token, namespace, path string) string {
	h := sha256.New()

	// NUL separators keep field boundaries unambiguous: ("ab","c")
	// and ("a","bc") must never collide.
	h.Write([]byte(token))
	h.Write([]byte{0})
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(path))

	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
