package sift

import (
	"github.com/kailas-cloud/sift/internal/domain/criteria"
	"github.com/kailas-cloud/sift/internal/domain/geo"
	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
)

// Criteria is one node of a criteria tree: a field condition, a group of
// sub-criteria, or both.
type Criteria = criteria.Node

// CriteriaOption controls how a node compiles and joins its parent.
type CriteriaOption = criteria.Option

// SearchType selects how a leaf compiles.
type SearchType = criteria.SearchType

// Search type constants.
const (
	TypeTerm        = criteria.Term
	TypeMatch       = criteria.Match
	TypeQueryString = criteria.QueryString
	TypeRange       = criteria.Range
	TypeExists      = criteria.FieldExists
)

// Logic is the boolean clause a node joins its parent with.
type Logic = query.Logic

// Logic constants.
const (
	Must    = query.Must
	Should  = query.Should
	MustNot = query.MustNot
)

// Operator joins the values of a term or query_string leaf.
type Operator = query.Operator

// Operator constants.
const (
	And = query.And
	Or  = query.Or
)

// SortKey is a single result ordering key.
type SortKey = sorting.Key

// SortOrder is the sort direction.
type SortOrder = sorting.Order

// Sort order constants.
const (
	Asc  = sorting.Asc
	Desc = sorting.Desc
)

// Unit is a geo distance unit.
type Unit = geo.Unit

// Unit constants.
const (
	Kilometers = geo.Kilometers
	Meters     = geo.Meters
	Miles      = geo.Miles
)

// Aggregation requests terms buckets over a field, optionally nested.
type Aggregation = aggregation.Field

// Bucket is one aggregation bucket with its nested buckets.
type Bucket = aggregation.Result

// Query is a search over one index.
type Query struct {
	Criteria []Criteria
	// QueryString is a raw query_string expression ANDed with Criteria.
	QueryString  string
	Sort         []SortKey
	Aggregations []Aggregation
}

// Results is a window of decoded hits.
type Results[T any] struct {
	// Total is the number of hits the query matched, not the window size.
	Total        int64
	Hits         []T
	Aggregations []Bucket
}

// Field creates a phrase-match leaf joined with must.
func Field(field string, values ...any) Criteria {
	return criteria.New(field, values...)
}

// Term creates an exact multi-value leaf; values are ORed.
func Term(field string, values ...any) Criteria {
	return leaf(field, TypeTerm, values)
}

// Match creates a phrase-match leaf.
func Match(field string, values ...any) Criteria {
	return leaf(field, TypeMatch, values)
}

// Range creates a range leaf. The first value is the inclusive lower bound,
// the optional second one the inclusive upper bound.
func Range(field string, from any, to ...any) Criteria {
	return leaf(field, TypeRange, append([]any{from}, to...))
}

// Exists creates a leaf matching documents that have field.
func Exists(field string) Criteria {
	return leaf(field, TypeExists, nil)
}

// Group combines sub-criteria under logic.
func Group(logic Logic, sub ...Criteria) Criteria {
	return criteria.Group(logic, sub...)
}

func leaf(field string, t SearchType, values []any) Criteria {
	n := criteria.New(field, values...)
	n.Option.SearchType = t
	return n
}

// SortBy orders results by a field.
func SortBy(field string, order SortOrder) (SortKey, error) {
	return sorting.ByField(field, order)
}

// SortByDistance orders results nearest first from (lat, lon) over a
// geo_point field. Hits then carry the distance under "geoDistance".
func SortByDistance(field string, lat, lon float64, unit Unit) (SortKey, error) {
	return sorting.ByDistance(field, geo.Point{Lat: lat, Lon: lon}, unit, sorting.Asc)
}

// Aggregate requests terms buckets over field with optional nested levels.
func Aggregate(field string, sub ...Aggregation) Aggregation {
	return Aggregation{Name: field, Sub: sub}
}
