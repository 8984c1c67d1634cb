package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sift/internal/config"
	"github.com/kailas-cloud/sift/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/sift/internal/db/redis"
	"github.com/kailas-cloud/sift/internal/domain/search/codec"
	logpkg "github.com/kailas-cloud/sift/internal/logger"
	"github.com/kailas-cloud/sift/internal/metrics"
	"github.com/kailas-cloud/sift/internal/repository/aggcache"
	chiTransport "github.com/kailas-cloud/sift/internal/transport/chi"
	"github.com/kailas-cloud/sift/internal/usecase/compile"
	healthuc "github.com/kailas-cloud/sift/internal/usecase/health"
	"github.com/kailas-cloud/sift/internal/usecase/materialize"
	searchuc "github.com/kailas-cloud/sift/internal/usecase/search"
	"github.com/kailas-cloud/sift/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sift API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("es_addresses", cfg.Elasticsearch.Addresses),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	ctx := context.Background()

	executor, err := elastic.New(elastic.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		BatchSize: cfg.Elasticsearch.BatchSize,
	})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch executor", zap.Error(err))
	}
	readiness := time.Duration(cfg.Elasticsearch.ReadinessTimeout) * time.Second
	if err := executor.WaitForReady(ctx, readiness); err != nil {
		logger.Fatal("Elasticsearch not ready", zap.Error(err))
	}
	logger.Info("Connected to elasticsearch")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Pass nil interfaces (not typed nil pointers!) when the cache is disabled.
	var (
		aggCache  searchuc.AggregationCache
		cachePing healthuc.Pinger
	)
	if cfg.Cache.Enabled {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to cache")

		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		aggCache = aggcache.New(store, ttl, metrics.AggCacheTotal, logger)
		cachePing = store
	}

	dates, err := codec.New(cfg.Search.DateFormat)
	if err != nil {
		logger.Fatal("Invalid date format", zap.String("pattern", cfg.Search.DateFormat), zap.Error(err))
	}

	// Create use case services
	compiler := compile.New(dates, metrics.CompileTotal)
	keepAlive := time.Duration(cfg.Elasticsearch.ScrollKeepAliveSec) * time.Second
	mat := materialize.New(executor, dates, keepAlive, logger)
	searchSvc := searchuc.New(executor, compiler, mat, aggCache, searchuc.Config{
		HighlightTags: cfg.Search.HighlightTags,
		BatchSize:     cfg.Elasticsearch.BatchSize,
	}, metrics.SearchDuration)
	healthSvc := healthuc.New(executor, cachePing)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, healthSvc, chiTransport.Options{
		DefaultIndex: cfg.Elasticsearch.Index,
		MaxOffset:    cfg.Search.MaxOffset,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
