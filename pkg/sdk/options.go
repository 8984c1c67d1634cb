package sift

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addresses []string
	username  string
	password  string
	transport http.RoundTripper

	cacheAddr     string
	cachePassword string
	cacheTTL      time.Duration

	dateFormat    string
	highlightTags string
	batchSize     int
	keepAlive     time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithElasticsearch sets the cluster addresses.
func WithElasticsearch(addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addresses = addrs
	})
}

// WithBasicAuth sets cluster credentials.
func WithBasicAuth(username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.username = username
		c.password = password
	})
}

// WithTransport overrides the HTTP transport used to reach the cluster.
func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(c *clientConfig) {
		c.transport = rt
	})
}

// WithRedisCache caches aggregation buckets in Redis for ttl.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddr = addr
		c.cachePassword = password
		c.cacheTTL = ttl
	})
}

// WithDateFormat sets the Java-style pattern used for date bounds and
// date fields of decoded results. Default: yyyy-MM-dd'T'HH:mm:ssZZZ.
func WithDateFormat(pattern string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dateFormat = pattern
	})
}

// WithHighlightTags sets the "open,close" highlight tag spec. Default: em,em.
func WithHighlightTags(spec string) Option {
	return optionFunc(func(c *clientConfig) {
		c.highlightTags = spec
	})
}

// WithBatchSize sets the number of hits fetched per scroll batch. Default: 10.
func WithBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = size
	})
}

// WithScrollKeepAlive sets how long scroll contexts live between batches.
// Default: 60s.
func WithScrollKeepAlive(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.keepAlive = d
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
