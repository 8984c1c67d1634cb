// Package query holds the compiled Elasticsearch query tree.
//
// Nodes are immutable once built: combinators return new values instead of
// mutating shared containers.
package query

import (
	"encoding/json"
	"fmt"
)

// Query is a compiled query node rendered as Elasticsearch DSL.
type Query interface {
	// Source returns the JSON-serializable DSL body of the node.
	Source() (any, error)
}

// Logic is the clause a query takes inside its parent boolean container.
type Logic string

// Logic constants.
const (
	Must    Logic = "must"
	Should  Logic = "should"
	MustNot Logic = "must_not"
)

// IsValid checks if the logic is one of the supported values.
func (l Logic) IsValid() bool {
	return l == Must || l == Should || l == MustNot
}

// Operator joins multiple terms of a text query.
type Operator string

// Operator constants.
const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// IsValid checks if the operator is one of the supported values.
func (o Operator) IsValid() bool {
	return o == And || o == Or
}

// Bool is a boolean combinator with must/should/must_not clauses.
type Bool struct {
	must    []Query
	should  []Query
	mustNot []Query
}

// NewBool creates an empty boolean container.
func NewBool() *Bool {
	return &Bool{}
}

// Must returns the must clauses.
func (b *Bool) Must() []Query { return b.must }

// Should returns the should clauses.
func (b *Bool) Should() []Query { return b.should }

// MustNot returns the must_not clauses.
func (b *Bool) MustNot() []Query { return b.mustNot }

// IsEmpty reports whether the container has no clauses.
func (b *Bool) IsEmpty() bool {
	return len(b.must) == 0 && len(b.should) == 0 && len(b.mustNot) == 0
}

// Merge returns a copy of root with q appended to the clause selected by logic.
// root is left untouched; a nil root is treated as empty.
func Merge(root *Bool, logic Logic, q Query) (*Bool, error) {
	if q == nil {
		return root, nil
	}
	if root == nil {
		root = NewBool()
	}
	next := &Bool{
		must:    append([]Query(nil), root.must...),
		should:  append([]Query(nil), root.should...),
		mustNot: append([]Query(nil), root.mustNot...),
	}
	switch logic {
	case Must:
		next.must = append(next.must, q)
	case Should:
		next.should = append(next.should, q)
	case MustNot:
		next.mustNot = append(next.mustNot, q)
	default:
		return nil, fmt.Errorf("unsupported search logic %q", logic)
	}
	return next, nil
}

// Source implements Query.
func (b *Bool) Source() (any, error) {
	body := make(map[string]any)
	for _, clause := range []struct {
		name    string
		queries []Query
	}{
		{"must", b.must},
		{"should", b.should},
		{"must_not", b.mustNot},
	} {
		if len(clause.queries) == 0 {
			continue
		}
		rendered := make([]any, len(clause.queries))
		for i, q := range clause.queries {
			src, err := q.Source()
			if err != nil {
				return nil, fmt.Errorf("bool %s[%d]: %w", clause.name, i, err)
			}
			rendered[i] = src
		}
		body[clause.name] = rendered
	}
	return map[string]any{"bool": body}, nil
}

// Terms matches documents having any of the exact values in a field.
type Terms struct {
	Field  string
	Values []string
	Boost  float64
}

// Source implements Query.
func (t *Terms) Source() (any, error) {
	values := make([]any, len(t.Values))
	for i, v := range t.Values {
		values[i] = v
	}
	return map[string]any{
		"terms": map[string]any{
			t.Field: values,
			"boost": t.Boost,
		},
	}, nil
}

// QueryString is a free-text query_string predicate.
// An empty Fields list searches the default field of the index.
type QueryString struct {
	Query              string
	Fields             []string
	DefaultOperator    Operator
	MinimumShouldMatch string
	Boost              float64
}

// Source implements Query.
func (q *QueryString) Source() (any, error) {
	body := map[string]any{"query": q.Query}
	if len(q.Fields) > 0 {
		body["fields"] = append([]string(nil), q.Fields...)
	}
	if q.DefaultOperator != "" {
		body["default_operator"] = string(q.DefaultOperator)
	}
	if q.MinimumShouldMatch != "" {
		body["minimum_should_match"] = q.MinimumShouldMatch
	}
	if q.Boost != 0 {
		body["boost"] = q.Boost
	}
	return map[string]any{"query_string": body}, nil
}

// MatchPhrase is a phrase match predicate tolerating Slop positional moves.
type MatchPhrase struct {
	Field string
	Query string
	Slop  int
	// Operator and MinimumShouldMatch are carried from the search option.
	// The 7.x match_phrase DSL has no equivalent, so Source leaves them out.
	Operator           Operator
	MinimumShouldMatch string
}

// Source implements Query.
func (m *MatchPhrase) Source() (any, error) {
	return map[string]any{
		"match_phrase": map[string]any{
			m.Field: map[string]any{
				"query": m.Query,
				"slop":  m.Slop,
			},
		},
	}, nil
}

// Range bounds a field below and optionally above (both inclusive).
type Range struct {
	Field string
	From  string
	To    *string
}

// Source implements Query.
func (r *Range) Source() (any, error) {
	bounds := map[string]any{"gte": r.From}
	if r.To != nil {
		bounds["lte"] = *r.To
	}
	return map[string]any{
		"range": map[string]any{r.Field: bounds},
	}, nil
}

// Bounded reports whether the range has an upper bound.
func (r *Range) Bounded() bool { return r.To != nil }

// Exists matches documents with any indexed value in Field.
type Exists struct {
	Field string
}

// Source implements Query.
func (e *Exists) Source() (any, error) {
	return map[string]any{
		"exists": map[string]any{"field": e.Field},
	}, nil
}

// Raw is a pre-built query body passed through verbatim.
type Raw struct {
	body json.RawMessage
}

// NewRaw validates body as a JSON object and wraps it.
func NewRaw(body []byte) (*Raw, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("native query must be a JSON object: %w", err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("native query is empty")
	}
	return &Raw{body: append(json.RawMessage(nil), body...)}, nil
}

// Source implements Query.
func (r *Raw) Source() (any, error) {
	return r.body, nil
}

// MarshalJSON renders the query tree as JSON.
func MarshalJSON(q Query) ([]byte, error) {
	src, err := q.Source()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	return data, nil
}
