package sift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/sift/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/sift/internal/db/redis"
	"github.com/kailas-cloud/sift/internal/domain/search/codec"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
	"github.com/kailas-cloud/sift/internal/repository/aggcache"
	"github.com/kailas-cloud/sift/internal/usecase/compile"
	healthuc "github.com/kailas-cloud/sift/internal/usecase/health"
	"github.com/kailas-cloud/sift/internal/usecase/materialize"
	searchuc "github.com/kailas-cloud/sift/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the sift SDK entry point.
type Client struct {
	executor  *elastic.Executor
	cache     *dbRedis.Store
	searchSvc *searchuc.Service
	healthSvc healthUseCase
	obs       *observer
}

// New creates a sift Client and waits for the cluster to answer.
// The provided context is used for the initial readiness checks.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addresses) == 0 {
		return nil, errors.New("sift: elasticsearch address required (use WithElasticsearch)")
	}

	executor, err := elastic.New(elastic.Config{
		Addresses: cfg.addresses,
		Username:  cfg.username,
		Password:  cfg.password,
		BatchSize: cfg.batchSize,
		Transport: cfg.transport,
	})
	if err != nil {
		return nil, fmt.Errorf("sift: create executor: %w", err)
	}
	if err := executor.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		return nil, fmt.Errorf("sift: elasticsearch not ready: %w", err)
	}

	var store *dbRedis.Store
	if cfg.cacheAddr != "" {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    []string{cfg.cacheAddr},
			Password: cfg.cachePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("sift: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("sift: redis not ready: %w", err)
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	c, err := wireClient(executor, store, cfg, obs)
	if err != nil && store != nil {
		store.Close()
	}
	return c, err
}

func wireClient(executor *elastic.Executor, store *dbRedis.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	dates := codec.Default()
	if cfg.dateFormat != "" {
		var err error
		if dates, err = codec.New(cfg.dateFormat); err != nil {
			return nil, fmt.Errorf("sift: date format: %w", err)
		}
	}

	// nil interfaces, not typed nil pointers, when the cache is off
	var (
		cache     searchuc.AggregationCache
		cachePing healthuc.Pinger
	)
	if store != nil {
		cache = aggcache.New(store, cfg.cacheTTL, nil, nil)
		cachePing = store
	}

	compiler := compile.New(dates, nil)
	mat := materialize.New(executor, dates, cfg.keepAlive, nil)
	searchSvc := searchuc.New(executor, compiler, mat, cache, searchuc.Config{
		HighlightTags: cfg.highlightTags,
		BatchSize:     cfg.batchSize,
	}, nil)

	return &Client{
		executor:  executor,
		cache:     store,
		searchSvc: searchSvc,
		healthSvc: healthuc.New(executor, cachePing),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Ping checks cluster connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.executor.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search returns the window [from, from+offset) of q's hits in index as raw
// JSON sources.
func (c *Client) Search(ctx context.Context, index string, q Query, from, offset int) (_ Results[json.RawMessage], err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err, "index", index) }()

	page, err := c.searchSvc.Search(ctx, index, toRequest(q, from, offset))
	if err != nil {
		return Results[json.RawMessage]{}, fmt.Errorf("search: %w", err)
	}
	return Results[json.RawMessage]{Total: page.Total, Hits: page.Hits, Aggregations: page.Aggregations}, nil
}

// Find returns the window [from, from+offset) of q's hits in index decoded
// into T. Struct fields are matched by json tag; numbers, booleans and
// dates are converted from their source representation.
func Find[T any](ctx context.Context, c *Client, index string, q Query, from, offset int) (_ Results[T], err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("find", start, err, "index", index, "from", from, "offset", offset)
	}()

	res, err := searchuc.SearchAs(ctx, c.searchSvc, index, toRequest(q, from, offset), materialize.Typed[T]())
	if err != nil {
		return Results[T]{}, fmt.Errorf("find: %w", err)
	}
	return Results[T]{Total: res.Total, Hits: res.Hits, Aggregations: res.Aggregations}, nil
}

// Sources returns the raw sources of q's first size hits in index as a JSON
// array, in a single request without a scroll context. Aggregations are
// not requested. Returns an empty string when nothing matched.
func (c *Client) Sources(ctx context.Context, index string, q Query, size int) (_ string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sources", start, err, "index", index) }()

	out, err := c.searchSvc.Sources(ctx, index, toRequest(q, 0, size))
	if err != nil {
		return "", fmt.Errorf("sources: %w", err)
	}
	return out, nil
}

// LookupID returns the value at a dotted path (for example "meta.id") of a
// raw hit source. The second result is false when the path does not exist.
func LookupID(source json.RawMessage, path string) (string, bool) {
	return codec.LookupID(source, path)
}

// Compile renders the request body q would send, without executing it.
func (c *Client) Compile(q Query) (_ map[string]any, err error) {
	start := time.Now()
	defer func() { c.obs.observe("compile", start, err) }()

	body, err := c.searchSvc.Compile(toRequest(q, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return body, nil
}

func toRequest(q Query, from, offset int) searchuc.Request {
	return searchuc.Request{
		Criteria:     q.Criteria,
		QueryString:  q.QueryString,
		Sort:         sorting.Descriptor(q.Sort),
		Aggregations: q.Aggregations,
		Window:       materialize.Window{From: from, Offset: offset},
	}
}
