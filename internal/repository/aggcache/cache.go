package aggcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
)

const cacheKeyPrefix = "sift:agg_cache:"

// DefaultTTL is used when the cache is created with a zero TTL.
const DefaultTTL = 5 * time.Minute

// store is the consumer interface for the aggregation cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache keeps read aggregation buckets in a key-value store.
// Failures of the store are logged and treated as misses.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates an aggregation cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

type keyInput struct {
	Index  string              `json:"index"`
	Query  any                 `json:"query"`
	Fields []aggregation.Field `json:"fields"`
}

// Key derives the cache key of an aggregation over q in index.
func Key(index string, q query.Query, fields []aggregation.Field) (string, error) {
	in := keyInput{Index: index, Fields: fields}
	if q != nil {
		src, err := q.Source()
		if err != nil {
			return "", fmt.Errorf("render query: %w", err)
		}
		in.Query = src
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	h := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(h[:]), nil
}

// Get returns the cached buckets of fields aggregated over q in index.
func (c *Cache) Get(
	ctx context.Context, index string, q query.Query, fields []aggregation.Field,
) ([]aggregation.Result, bool) {
	key, err := Key(index, q, fields)
	if err != nil {
		c.logger.Warn("Failed to build aggregation cache key", zap.Error(err))
		c.inc("miss")
		return nil, false
	}
	return c.get(ctx, key)
}

func (c *Cache) get(ctx context.Context, key string) ([]aggregation.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached aggregations", zap.String("key", key), zap.Error(err))
		}
		c.inc("miss")
		return nil, false
	}
	if len(data) == 0 {
		c.inc("miss")
		return nil, false
	}

	var results []aggregation.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("Failed to parse cached aggregations", zap.String("key", key), zap.Error(err))
		c.inc("miss")
		return nil, false
	}
	c.inc("hit")
	return results, true
}

// Put stores the buckets of fields aggregated over q in index.
func (c *Cache) Put(
	ctx context.Context, index string, q query.Query, fields []aggregation.Field, results []aggregation.Result,
) {
	key, err := Key(index, q, fields)
	if err != nil {
		c.logger.Warn("Failed to build aggregation cache key", zap.Error(err))
		return
	}
	c.put(ctx, key, results)
}

func (c *Cache) put(ctx context.Context, key string, results []aggregation.Result) {
	if results == nil {
		results = []aggregation.Result{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("Failed to encode aggregations", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache aggregations", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
