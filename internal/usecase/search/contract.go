package search

import (
	"context"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
)

// Executor opens searches. Continuations go through the materializer's scroller.
type Executor interface {
	Search(ctx context.Context, req *db.SearchRequest) (*db.Response, error)
}

// AggregationCache keeps aggregation buckets between identical searches.
type AggregationCache interface {
	Get(ctx context.Context, index string, q query.Query, fields []aggregation.Field) ([]aggregation.Result, bool)
	Put(ctx context.Context, index string, q query.Query, fields []aggregation.Field, results []aggregation.Result)
}
