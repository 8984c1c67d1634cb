package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/criteria"
	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/highlight"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
	"github.com/kailas-cloud/sift/internal/usecase/compile"
	"github.com/kailas-cloud/sift/internal/usecase/materialize"
)

// Operation names carried by SearchExecutionError.
const (
	OpSearch      = "search"
	OpAggregation = "aggregation"
)

// DefaultHighlightTags wraps highlighted fragments in <em></em>.
const DefaultHighlightTags = "em,em"

// Request describes one search.
type Request struct {
	Criteria []criteria.Node
	// QueryString is a raw query_string expression ANDed with the criteria.
	QueryString  string
	Sort         sorting.Descriptor
	Aggregations []aggregation.Field
	Window       materialize.Window
}

// Result is the decoded window of a search.
type Result[T any] struct {
	Total        int64
	Hits         []T
	Aggregations []aggregation.Result
}

// Page is the materialized window of a search as JSON sources.
type Page struct {
	Total        int64
	Hits         []json.RawMessage
	Aggregations []aggregation.Result
}

// Config holds search defaults.
type Config struct {
	HighlightTags string
	// BatchSize is the number of hits per scroll batch; zero leaves it to the executor.
	BatchSize int
}

// Service compiles criteria and executes them.
type Service struct {
	exec     Executor
	compiler *compile.Compiler
	mat      *materialize.Materializer
	cache    AggregationCache
	cfg      Config
	duration *prometheus.HistogramVec
}

// New creates a search service. cache can be nil.
// duration is a histogram vec with label "status" ("ok"/"error"); nil disables it.
func New(
	exec Executor,
	compiler *compile.Compiler,
	mat *materialize.Materializer,
	cache AggregationCache,
	cfg Config,
	duration *prometheus.HistogramVec,
) *Service {
	if cfg.HighlightTags == "" {
		cfg.HighlightTags = DefaultHighlightTags
	}
	return &Service{
		exec:     exec,
		compiler: compiler,
		mat:      mat,
		cache:    cache,
		cfg:      cfg,
		duration: duration,
	}
}

// Search runs req against index and materializes its window as JSON sources.
func (s *Service) Search(ctx context.Context, index string, req Request) (Page, error) {
	res, err := SearchAs(ctx, s, index, req, materialize.RawText())
	if err != nil {
		return Page{}, err
	}
	hits := make([]json.RawMessage, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = json.RawMessage(h)
	}
	return Page{Total: res.Total, Hits: hits, Aggregations: res.Aggregations}, nil
}

// SearchAs runs req against index and decodes its window with shape.
// Aggregations are served from the cache when present there; the engine is
// then asked for hits only.
func SearchAs[T any](
	ctx context.Context, s *Service, index string, req Request, shape materialize.Shape[T],
) (res Result[T], err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	if err := req.Window.Validate(); err != nil {
		return Result[T]{}, err
	}
	sr, err := s.buildRequest(index, req)
	if err != nil {
		return Result[T]{}, err
	}

	var aggs []aggregation.Result
	cached := false
	if len(req.Aggregations) > 0 && s.cache != nil {
		if aggs, cached = s.cache.Get(ctx, index, sr.Query, req.Aggregations); cached {
			sr.Aggs = nil
		}
	}

	resp, err := s.exec.Search(ctx, sr)
	if err != nil {
		return Result[T]{}, domain.NewSearchExecutionError(OpSearch, "", err)
	}

	hits, err := materialize.Materialize(ctx, s.mat, resp, shape, req.Window, req.Sort)
	if err != nil {
		return Result[T]{}, err
	}

	if len(req.Aggregations) > 0 && !cached {
		aggs, err = aggregation.Read(resp.Aggregations, req.Aggregations)
		if err != nil {
			return Result[T]{}, domain.NewSearchExecutionError(OpAggregation, resp.ScrollID, err)
		}
		if s.cache != nil {
			s.cache.Put(ctx, index, sr.Query, req.Aggregations, aggs)
		}
	}

	return Result[T]{Total: resp.TotalHits, Hits: hits, Aggregations: aggs}, nil
}

// Sources runs req once without a scroll context and returns the sources of
// its first req.Window.Offset hits as a JSON array; Window.From is not
// applied. Returns an empty string when nothing matched. Aggregations are
// not requested.
func (s *Service) Sources(ctx context.Context, index string, req Request) (out string, err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	if err := req.Window.Validate(); err != nil {
		return "", err
	}
	sr, err := s.buildRequest(index, req)
	if err != nil {
		return "", err
	}
	sr.Aggs = nil
	sr.Scroll = 0
	if req.Window.Offset > 0 {
		sr.Size = req.Window.Offset
	}

	resp, err := s.exec.Search(ctx, sr)
	if err != nil {
		return "", domain.NewSearchExecutionError(OpSearch, "", err)
	}
	return materialize.Sources(resp)
}

// Compile renders the request body req would send, without executing it.
func (s *Service) Compile(req Request) (map[string]any, error) {
	sr, err := s.buildRequest("", req)
	if err != nil {
		return nil, err
	}
	body, err := sr.Body()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQueryCompile, err)
	}
	return body, nil
}

func (s *Service) buildRequest(index string, req Request) (*db.SearchRequest, error) {
	q, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}
	sr := &db.SearchRequest{
		Index:  index,
		Query:  q,
		Aggs:   aggregation.Build(req.Aggregations),
		Sort:   req.Sort,
		Size:   s.cfg.BatchSize,
		Scroll: s.mat.KeepAlive(),
	}
	sr, err = highlight.Apply(sr, req.Criteria, s.cfg.HighlightTags)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return sr, nil
}

func (s *Service) buildQuery(req Request) (query.Query, error) {
	q, err := s.compiler.Compile(req.Criteria)
	if err != nil {
		return nil, err
	}
	raw := s.compiler.QueryString(req.QueryString)
	if raw == nil {
		return q, nil
	}
	if q == nil {
		return raw, nil
	}
	root, err := query.Merge(nil, query.Must, q)
	if err != nil {
		return nil, err
	}
	return query.Merge(root, query.Must, raw)
}

func (s *Service) observe(start time.Time, err error) {
	if s.duration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
