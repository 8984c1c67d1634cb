// Package criteria describes the caller-side search tree compiled into queries.
package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/sift/internal/domain/search/query"
)

// SearchType selects how a leaf node compiles.
type SearchType string

// Search type constants.
const (
	// Term is an exact multi-value match.
	Term SearchType = "term"
	// Match is a phrase match with slop.
	Match SearchType = "match"
	// QueryString is a free-text query_string search scoped to the field.
	QueryString SearchType = "querystring"
	Range       SearchType = "range"
	// FieldExists matches documents that have the field; values are ignored.
	FieldExists SearchType = "exists"
)

// IsValid checks if the search type is one of the supported values.
func (t SearchType) IsValid() bool {
	return t == Term || t == Match || t == QueryString || t == Range || t == FieldExists
}

// DataFilter short-circuits compilation into a structural check.
type DataFilter string

// Data filter constants.
const (
	NoFilter DataFilter = "none"
	Exists   DataFilter = "exists"
)

// IsValid checks if the data filter is one of the supported values.
func (f DataFilter) IsValid() bool {
	return f == "" || f == NoFilter || f == Exists
}

// Default option values.
const (
	DefaultPrecision = "20%"
	DefaultBoost     = 1.0
)

// Option controls how a single node compiles and merges into its parent.
type Option struct {
	SearchType           SearchType     `json:"search_type"`
	TermOperator         query.Operator `json:"term_operator"`
	QueryStringPrecision string         `json:"query_string_precision"`
	Boost                float64        `json:"boost"`
	DataFilter           DataFilter     `json:"data_filter"`
	Highlight            bool           `json:"highlight"`
	Logic                query.Logic    `json:"logic"`
}

// DefaultOption returns a phrase match joined by OR and merged as must.
func DefaultOption() Option {
	return Option{
		SearchType:           Match,
		TermOperator:         query.Or,
		QueryStringPrecision: DefaultPrecision,
		Boost:                DefaultBoost,
		DataFilter:           NoFilter,
		Logic:                query.Must,
	}
}

// WithDefaults fills zero fields from DefaultOption.
// A zero Boost counts as unset; JSON decoding keeps an explicit "boost": 0.
func (o Option) WithDefaults() Option {
	d := DefaultOption()
	if o.SearchType == "" {
		o.SearchType = d.SearchType
	}
	if o.TermOperator == "" {
		o.TermOperator = d.TermOperator
	}
	if o.QueryStringPrecision == "" {
		o.QueryStringPrecision = d.QueryStringPrecision
	}
	if o.Boost == 0 {
		o.Boost = d.Boost
	}
	if o.DataFilter == "" {
		o.DataFilter = d.DataFilter
	}
	if o.Logic == "" {
		o.Logic = d.Logic
	}
	return o
}

// Validate checks enum values and the boost range.
func (o Option) Validate() error {
	if !o.SearchType.IsValid() {
		return fmt.Errorf("invalid search type: %q", o.SearchType)
	}
	if !o.TermOperator.IsValid() {
		return fmt.Errorf("invalid term operator: %q", o.TermOperator)
	}
	if !o.DataFilter.IsValid() {
		return fmt.Errorf("invalid data filter: %q", o.DataFilter)
	}
	if !o.Logic.IsValid() {
		return fmt.Errorf("invalid search logic: %q", o.Logic)
	}
	if o.Boost < 0 {
		return fmt.Errorf("boost must be >= 0, got %v", o.Boost)
	}
	return nil
}

// Node is one element of a criteria tree.
// Native, when set, replaces the Field/Values compilation of this node.
type Node struct {
	Field  string
	Values []any
	Option Option
	Sub    []Node
	Native query.Query
}

// New creates a leaf node with the default option.
func New(field string, values ...any) Node {
	return Node{Field: field, Values: values, Option: DefaultOption()}
}

// Group creates a node that only combines sub-criteria under logic.
func Group(logic query.Logic, sub ...Node) Node {
	opt := DefaultOption()
	opt.Logic = logic
	return Node{Option: opt, Sub: sub}
}

// WithOption returns a copy of the node using opt.
func (n Node) WithOption(opt Option) Node {
	n.Option = opt
	return n
}

// WithNative returns a copy of the node carrying a pre-built query.
func (n Node) WithNative(q query.Query) Node {
	n.Native = q
	return n
}

// HasSub reports whether the node carries sub-criteria.
func (n Node) HasSub() bool { return len(n.Sub) > 0 }

// IsBlank reports whether the node names no field.
func (n Node) IsBlank() bool { return strings.TrimSpace(n.Field) == "" }

// optionJSON tells an absent boost from an explicit zero.
type optionJSON struct {
	Option
	Boost *float64 `json:"boost"`
}

type nodeJSON struct {
	Field  string          `json:"field"`
	Values []any           `json:"values"`
	Option *optionJSON     `json:"option"`
	Sub    []Node          `json:"sub"`
	Native json.RawMessage `json:"native"`
}

// UnmarshalJSON decodes a node, applying option defaults and wrapping
// a native body as query.Raw. Numeric values are kept as json.Number.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode criteria node: %w", err)
	}
	opt := DefaultOption()
	if raw.Option != nil {
		opt = raw.Option.Option.WithDefaults()
		if raw.Option.Boost != nil {
			opt.Boost = *raw.Option.Boost
		}
	}
	if err := opt.Validate(); err != nil {
		return fmt.Errorf("criteria node %q: %w", raw.Field, err)
	}
	*n = Node{Field: raw.Field, Values: raw.Values, Option: opt, Sub: raw.Sub}
	if len(raw.Native) > 0 && string(raw.Native) != "null" {
		q, err := query.NewRaw(raw.Native)
		if err != nil {
			return fmt.Errorf("criteria node %q: %w", raw.Field, err)
		}
		n.Native = q
	}
	return nil
}

// Walk visits every node of the tree depth-first, parents before children.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Sub, fn)
	}
}
