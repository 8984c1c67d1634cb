package compile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/criteria"
	"github.com/kailas-cloud/sift/internal/domain/search/codec"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
	"github.com/kailas-cloud/sift/internal/domain/search/sanitize"
)

// MatchPhraseSlop is the positional tolerance of phrase matches.
const MatchPhraseSlop = 50

var errNoLowerBound = errors.New("range lower bound is required")

// Compiler turns criteria trees into query trees.
// It holds no mutable state and is safe for concurrent use.
type Compiler struct {
	codec *codec.Codec
	total *prometheus.CounterVec
}

// New creates a compiler formatting dates with c.
// total is a counter vec with label "status" ("ok"/"error"); nil disables it.
func New(c *codec.Codec, total *prometheus.CounterVec) *Compiler {
	if c == nil {
		c = codec.Default()
	}
	return &Compiler{codec: c, total: total}
}

// Compile compiles nodes into a single boolean query.
// Returns nil when nothing in the tree contributes a clause.
func (c *Compiler) Compile(nodes []criteria.Node) (query.Query, error) {
	root, err := c.compileNodes(nodes)
	if err != nil {
		c.inc("error")
		return nil, err
	}
	c.inc("ok")
	if root == nil {
		return nil, nil
	}
	return root, nil
}

func (c *Compiler) compileNodes(nodes []criteria.Node) (*query.Bool, error) {
	root := query.NewBool()
	for _, n := range nodes {
		logic := n.Option.Logic

		if n.HasSub() {
			child, err := c.compileNodes(n.Sub)
			if err != nil {
				return nil, err
			}
			if child != nil {
				if root, err = merge(root, logic, child, n); err != nil {
					return nil, err
				}
			}
		}

		own := n.Native
		if own == nil && !n.IsBlank() {
			q, err := c.CompileLeaf(strings.TrimSpace(n.Field), n.Values, n.Option)
			if err != nil {
				return nil, err
			}
			own = q
		}
		var err error
		if root, err = merge(root, logic, own, n); err != nil {
			return nil, err
		}
	}
	if root.IsEmpty() {
		return nil, nil
	}
	return root, nil
}

func merge(root *query.Bool, logic query.Logic, q query.Query, n criteria.Node) (*query.Bool, error) {
	next, err := query.Merge(root, logic, q)
	if err != nil {
		return nil, domain.NewQueryCompileError(n.Field, n.Values, err)
	}
	return next, nil
}

// CompileLeaf compiles a single field predicate.
// Range searches ignore the data filter; an exists filter ignores values.
// Returns nil when there are no values to match.
func (c *Compiler) CompileLeaf(field string, values []any, opt criteria.Option) (query.Query, error) {
	if opt.SearchType == criteria.Range {
		return c.CompileRange(field, values)
	}
	if opt.SearchType == criteria.FieldExists || opt.DataFilter == criteria.Exists {
		return &query.Exists{Field: field}, nil
	}

	terms := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		s := sanitize.Value(v)
		if opt.SearchType == criteria.QueryString {
			s = sanitize.QueryStringTerm(s)
		}
		terms = append(terms, s)
	}
	if len(terms) == 0 {
		return nil, nil
	}
	joined := strings.Join(terms, " ")

	switch opt.SearchType {
	case criteria.Term:
		return &query.Terms{Field: field, Values: terms, Boost: opt.Boost}, nil
	case criteria.QueryString:
		text := joined
		if opt.TermOperator == query.And {
			text = `"` + joined + `"`
		}
		return &query.QueryString{
			Query:              text,
			Fields:             []string{field},
			DefaultOperator:    opt.TermOperator,
			MinimumShouldMatch: opt.QueryStringPrecision,
			Boost:              opt.Boost,
		}, nil
	case criteria.Match:
		return &query.MatchPhrase{
			Field:              field,
			Query:              joined,
			Slop:               MatchPhraseSlop,
			Operator:           opt.TermOperator,
			MinimumShouldMatch: opt.QueryStringPrecision,
		}, nil
	default:
		return nil, domain.NewQueryCompileError(field, values,
			fmt.Errorf("unsupported search type %q", opt.SearchType))
	}
}

// CompileRange compiles values[0] and the optional values[1] into an
// inclusive range. Date-typed lower bounds format both bounds with the
// codec; anything else is sanitized. Returns nil for no values.
func (c *Compiler) CompileRange(field string, values []any) (query.Query, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if values[0] == nil {
		return nil, domain.NewQueryCompileError(field, values, errNoLowerBound)
	}

	if codec.IsDate(values[0]) {
		from, err := c.codec.FormatDate(values[0])
		if err != nil {
			return nil, domain.NewQueryCompileError(field, values[0], err)
		}
		r := &query.Range{Field: field, From: from}
		if len(values) > 1 && !isBlank(values[1]) {
			to, err := c.codec.FormatDate(values[1])
			if err != nil {
				return nil, domain.NewQueryCompileError(field, values[1], err)
			}
			r.To = &to
		}
		return r, nil
	}

	from := sanitize.Value(values[0])
	if from == "" {
		return nil, domain.NewQueryCompileError(field, values, errNoLowerBound)
	}
	r := &query.Range{Field: field, From: from}
	if len(values) > 1 && values[1] != nil {
		if to := sanitize.Value(values[1]); to != "" {
			r.To = &to
		}
	}
	return r, nil
}

// QueryString wraps a raw query_string expression searched across the
// default fields. Returns nil for blank input.
func (c *Compiler) QueryString(raw string) query.Query {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return &query.QueryString{Query: raw}
}

// isBlank reports a missing bound: nil or a whitespace-only string.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func (c *Compiler) inc(status string) {
	if c.total != nil {
		c.total.WithLabelValues(status).Inc()
	}
}
