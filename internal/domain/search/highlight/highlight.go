// Package highlight attaches highlighting to search requests.
package highlight

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain/criteria"
)

// FragmentSize is large enough that highlighted text is returned whole.
const FragmentSize = 1000

// Tags is an opening/closing tag pair.
type Tags struct {
	Pre  string
	Post string
}

// ParseTags reads a "open,close" tag spec: "em,em" yields <em> and </em>.
func ParseTags(spec string) (Tags, error) {
	open, close, ok := strings.Cut(spec, ",")
	open, close = strings.TrimSpace(open), strings.TrimSpace(close)
	if !ok || open == "" || close == "" {
		return Tags{}, fmt.Errorf("highlight tags %q: want \"open,close\"", spec)
	}
	return Tags{Pre: "<" + open + ">", Post: "</" + close + ">"}, nil
}

// Apply registers highlighting on every criteria field with Highlight set,
// including nested criteria, and returns req for chaining.
// req is left untouched when no field asks for highlighting.
func Apply(req *db.SearchRequest, nodes []criteria.Node, tagSpec string) (*db.SearchRequest, error) {
	var fields []string
	criteria.Walk(nodes, func(n criteria.Node) {
		if n.Option.Highlight && !n.IsBlank() {
			fields = append(fields, n.Field)
		}
	})
	if len(fields) == 0 {
		return req, nil
	}

	tags, err := ParseTags(tagSpec)
	if err != nil {
		return nil, err
	}
	if req.Highlight == nil {
		req.Highlight = &db.Highlight{Fields: make(map[string]db.HighlightField)}
	}
	if req.Highlight.Fields == nil {
		req.Highlight.Fields = make(map[string]db.HighlightField)
	}
	req.Highlight.PreTags = []string{tags.Pre}
	req.Highlight.PostTags = []string{tags.Post}
	for _, f := range fields {
		req.Highlight.Fields[f] = db.HighlightField{FragmentSize: FragmentSize}
	}
	return req, nil
}
