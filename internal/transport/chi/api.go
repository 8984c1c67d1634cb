package chi

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/sift/internal/domain/criteria"
	"github.com/kailas-cloud/sift/internal/domain/geo"
	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
	"github.com/kailas-cloud/sift/internal/usecase/materialize"
	searchuc "github.com/kailas-cloud/sift/internal/usecase/search"
)

// ErrorCode is the machine-readable error code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeQueryCompile     ErrorCode = "query_compile_failed"
	CodeInvalidFormat    ErrorCode = "invalid_format"
	CodeIndexNotFound    ErrorCode = "index_not_found"
	CodeScrollExpired    ErrorCode = "scroll_expired"
	CodeSearchFailed     ErrorCode = "search_failed"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// SortKey orders results by a field, or by distance when Origin is set.
type SortKey struct {
	Field  string    `json:"field" validate:"required"`
	Order  string    `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
	Origin *GeoPoint `json:"origin,omitempty"`
	Unit   string    `json:"unit,omitempty" validate:"omitempty,oneof=km m mi"`
}

// AggregationField requests a terms aggregation with nested children.
type AggregationField struct {
	Field string             `json:"field" validate:"required"`
	Sub   []AggregationField `json:"sub,omitempty" validate:"dive"`
}

// SearchRequest is the body of the search and compile endpoints.
type SearchRequest struct {
	Criteria     []criteria.Node    `json:"criteria"`
	QueryString  string             `json:"query_string,omitempty"`
	Sort         []SortKey          `json:"sort,omitempty" validate:"dive"`
	Aggregations []AggregationField `json:"aggregations,omitempty" validate:"dive"`
}

// SearchResponse is a materialized result window.
type SearchResponse struct {
	Total        int64                `json:"total"`
	From         int                  `json:"from"`
	Offset       int                  `json:"offset"`
	Hits         []json.RawMessage    `json:"hits"`
	Aggregations []aggregation.Result `json:"aggregations,omitempty"`
	// IDs holds the id_field value of each hit, "" when a hit lacks it.
	IDs []string `json:"ids,omitempty"`
}

// CompileResponse carries the request body a search would send.
type CompileResponse struct {
	Body map[string]any `json:"body"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (r SearchRequest) toDomain(win materialize.Window) (searchuc.Request, error) {
	sorts, err := sortFromAPI(r.Sort)
	if err != nil {
		return searchuc.Request{}, err
	}
	return searchuc.Request{
		Criteria:     r.Criteria,
		QueryString:  r.QueryString,
		Sort:         sorts,
		Aggregations: aggregationsFromAPI(r.Aggregations),
		Window:       win,
	}, nil
}

func sortFromAPI(keys []SortKey) (sorting.Descriptor, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make(sorting.Descriptor, 0, len(keys))
	for _, k := range keys {
		order := sorting.Order(k.Order)
		if order == "" {
			order = sorting.Asc
		}
		var (
			key sorting.Key
			err error
		)
		if k.Origin != nil {
			key, err = sorting.ByDistance(k.Field, geo.Point{Lat: k.Origin.Lat, Lon: k.Origin.Lon}, geo.Unit(k.Unit), order)
		} else {
			key, err = sorting.ByField(k.Field, order)
		}
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		out = append(out, key)
	}
	return out, nil
}

func aggregationsFromAPI(fields []AggregationField) []aggregation.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]aggregation.Field, len(fields))
	for i, f := range fields {
		out[i] = aggregation.Field{Name: f.Field, Sub: aggregationsFromAPI(f.Sub)}
	}
	return out
}
