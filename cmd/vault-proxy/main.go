package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/secretcache/vault-proxy/pkg/cache"
	"github.com/secretcache/vault-proxy/pkg/config"
	"github.com/secretcache/vault-proxy/pkg/logging"
	"github.com/secretcache/vault-proxy/pkg/proxy"
	"github.com/secretcache/vault-proxy/pkg/ratelimit"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger := logging.NewLogger("main")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	store := cache.NewStore(cache.Options{
		TTL:           cfg.CacheTTL,
		PurgeInterval: cfg.PurgeInterval,
		MaxEntries:    cfg.CacheMaxEntries,
	})

	forwarder, err := proxy.NewForwarder(cfg.UpstreamURL, cfg.UpstreamTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid upstream url")
	}

	handler := proxy.NewHandler(store, forwarder, proxy.NewClassifier(cfg.CacheablePathPrefixes))

	chain := alice.New(accessLog(logging.NewLogger("http")))
	if cfg.RateLimitEnabled {
		limiter := ratelimit.New(ratelimit.Options{
			BurstPerSecond: cfg.RateBurstPerSec,
			PerMinute:      cfg.RatePerMinute,
			BucketSize:     cfg.RateBucketSize,
			MaxLimiters:    cfg.CacheMaxEntries,
			IdleExpiry:     2 * time.Minute,
			PurgeInterval:  time.Minute,
		})
		chain = chain.Append(limiter.Middleware)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", chain.Then(handler))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("upstream", cfg.UpstreamURL).
			Dur("cache_ttl", cfg.CacheTTL).
			Msg("starting vault proxy")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
	logger.Info().Msg("vault proxy stopped")
}

// accessLog logs one line per proxied request. Auth headers are never
// logged.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
