// Package config loads proxy configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/secretcache/vault-proxy/pkg/logging"
)

// Environment variable names recognized by the proxy.
const (
	EnvListenAddr       = "PROXY_ADDR"
	EnvUpstreamURL      = "VAULT_ADDR"
	EnvCacheTTL         = "CACHE_TTL_SECONDS"
	EnvPurgeInterval    = "CACHE_PURGE_INTERVAL_SECONDS"
	EnvCacheMaxEntries  = "CACHE_MAX_ENTRIES"
	EnvCacheablePaths   = "CACHEABLE_PATH_PREFIXES"
	EnvUpstreamTimeout  = "UPSTREAM_TIMEOUT_SECONDS"
	EnvRateLimitEnabled = "RATE_LIMIT_ENABLED"
	EnvRateBurstPerSec  = "RATE_LIMIT_BURST_PER_SECOND"
	EnvRatePerMinute    = "RATE_LIMIT_PER_MINUTE"
	EnvRateBucketSize   = "RATE_LIMIT_BUCKET_SIZE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogPretty        = "LOG_PRETTY"
)

// Config holds the full proxy configuration.
type Config struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string

	// UpstreamURL is the base URL of the Vault server requests are
	// forwarded to. The proxy resolves inbound paths against it rather
	// than rewriting ports, so proxy and upstream may live on
	// different hosts.
	UpstreamURL string

	// CacheTTL is how long a cached secret response stays fresh.
	CacheTTL time.Duration

	// PurgeInterval bounds how often a full expired-entry sweep runs.
	PurgeInterval time.Duration

	// CacheMaxEntries caps the store size. 0 means unbounded.
	CacheMaxEntries int

	// CacheablePathPrefixes lists the path substrings marking requests
	// against a key/value secrets engine as cache-eligible.
	CacheablePathPrefixes []string

	// UpstreamTimeout bounds every upstream call.
	UpstreamTimeout time.Duration

	// Rate limiting (per auth token).
	RateLimitEnabled bool
	RateBurstPerSec  int
	RatePerMinute    int
	RateBucketSize   int

	// Logging
	LogLevel  logging.LogLevel
	LogPretty bool
}

// Default returns a safe default configuration.
func Default() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8199",
		UpstreamURL:           "http://127.0.0.1:8200",
		CacheTTL:              60 * time.Second,
		PurgeInterval:         10 * time.Minute,
		CacheMaxEntries:       4096,
		CacheablePathPrefixes: []string{"/v1/kv/"},
		UpstreamTimeout:       5 * time.Second,
		RateLimitEnabled:      true,
		RateBurstPerSec:       10,
		RatePerMinute:         300,
		RateBucketSize:        50,
		LogLevel:              logging.LevelInfo,
		LogPretty:             false,
	}
}

// FromEnv builds a Config from environment variables, falling back to
// defaults for anything unset.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.ListenAddr = getEnv(EnvListenAddr, cfg.ListenAddr)
	cfg.UpstreamURL = getEnv(EnvUpstreamURL, cfg.UpstreamURL)
	cfg.LogLevel = logging.LogLevel(getEnv(EnvLogLevel, string(cfg.LogLevel)))
	cfg.LogPretty = getEnvBool(EnvLogPretty, cfg.LogPretty)
	cfg.RateLimitEnabled = getEnvBool(EnvRateLimitEnabled, cfg.RateLimitEnabled)

	if prefixes := os.Getenv(EnvCacheablePaths); prefixes != "" {
		cfg.CacheablePathPrefixes = nil
		for _, p := range strings.Split(prefixes, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.CacheablePathPrefixes = append(cfg.CacheablePathPrefixes, p)
			}
		}
	}

	var err error
	if cfg.CacheTTL, err = getEnvSeconds(EnvCacheTTL, cfg.CacheTTL); err != nil {
		return cfg, err
	}
	if cfg.PurgeInterval, err = getEnvSeconds(EnvPurgeInterval, cfg.PurgeInterval); err != nil {
		return cfg, err
	}
	if cfg.UpstreamTimeout, err = getEnvSeconds(EnvUpstreamTimeout, cfg.UpstreamTimeout); err != nil {
		return cfg, err
	}
	if cfg.CacheMaxEntries, err = getEnvInt(EnvCacheMaxEntries, cfg.CacheMaxEntries); err != nil {
		return cfg, err
	}
	if cfg.RateBurstPerSec, err = getEnvInt(EnvRateBurstPerSec, cfg.RateBurstPerSec); err != nil {
		return cfg, err
	}
	if cfg.RatePerMinute, err = getEnvInt(EnvRatePerMinute, cfg.RatePerMinute); err != nil {
		return cfg, err
	}
	if cfg.RateBucketSize, err = getEnvInt(EnvRateBucketSize, cfg.RateBucketSize); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the proxy cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	u, err := url.Parse(c.UpstreamURL)
	if err != nil {
		return fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream url must be http or https (got %q)", c.UpstreamURL)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream url must include a host (got %q)", c.UpstreamURL)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive (got %v)", c.CacheTTL)
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("purge interval must be positive (got %v)", c.PurgeInterval)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive (got %v)", c.UpstreamTimeout)
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache max entries must be >= 0 (got %d)", c.CacheMaxEntries)
	}
	if len(c.CacheablePathPrefixes) == 0 {
		return fmt.Errorf("at least one cacheable path prefix is required")
	}

	if c.RateLimitEnabled {
		if c.RateBurstPerSec <= 0 {
			return fmt.Errorf("rate limit burst must be positive (got %d)", c.RateBurstPerSec)
		}
		if c.RatePerMinute <= 0 {
			return fmt.Errorf("rate limit per minute must be positive (got %d)", c.RatePerMinute)
		}
		if c.RateBucketSize <= 0 {
			return fmt.Errorf("rate limit bucket size must be positive (got %d)", c.RateBucketSize)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
