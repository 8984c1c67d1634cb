package db

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kailas-cloud/sift/internal/domain/search/aggregation"
	"github.com/kailas-cloud/sift/internal/domain/search/query"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
)

// SearchRequest is the input for a search call.
type SearchRequest struct {
	Index     string
	Query     query.Query
	Aggs      aggregation.Request
	Sort      sorting.Descriptor
	Size      int
	Highlight *Highlight
	// Scroll opens a scroll context kept alive for this duration. Zero disables scrolling.
	Scroll time.Duration
}

// Encode writes the request body as JSON. HTML characters such as
// highlight tags are written verbatim.
func (r *SearchRequest) Encode(w io.Writer) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return nil
}

// Body renders the request body as Elasticsearch DSL.
// A nil Query renders as match_all.
func (r *SearchRequest) Body() (map[string]any, error) {
	body := map[string]any{}
	if r.Query != nil {
		src, err := r.Query.Source()
		if err != nil {
			return nil, fmt.Errorf("render query: %w", err)
		}
		body["query"] = src
	} else {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	}
	if len(r.Aggs) > 0 {
		body["aggs"] = map[string]any(r.Aggs)
	}
	if s := r.Sort.Source(); s != nil {
		body["sort"] = s
	}
	if r.Highlight != nil && len(r.Highlight.Fields) > 0 {
		body["highlight"] = r.Highlight.Source()
	}
	return body, nil
}

// Highlight is the highlighting section of a request.
type Highlight struct {
	PreTags  []string
	PostTags []string
	Fields   map[string]HighlightField
}

// HighlightField configures highlighting for a single field.
type HighlightField struct {
	FragmentSize int
}

// Source renders the highlight section.
func (h *Highlight) Source() map[string]any {
	fields := make(map[string]any, len(h.Fields))
	for name, f := range h.Fields {
		fields[name] = map[string]any{"fragment_size": f.FragmentSize}
	}
	return map[string]any{
		"pre_tags":  h.PreTags,
		"post_tags": h.PostTags,
		"fields":    fields,
	}
}

// Response is one batch of a search or scroll call.
type Response struct {
	ScrollID     string
	TotalHits    int64
	Hits         []Hit
	Aggregations map[string]json.RawMessage
}

// Hit is a single document of a response batch.
type Hit struct {
	Index     string              `json:"_index"`
	ID        string              `json:"_id"`
	Score     *float64            `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Sort      []any               `json:"sort,omitempty"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

type wireResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total total `json:"total"`
		Hits  []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// total accepts both the 7.x {"value": n} object and the legacy bare number.
type total int64

func (t *total) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			return fmt.Errorf("hits.total: %w", err)
		}
		*t = total(v)
		return nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("hits.total: %w", err)
	}
	*t = total(obj.Value)
	return nil
}

// DecodeResponse reads a search or scroll response body.
// Numbers in sort values are kept as json.Number.
func DecodeResponse(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var w wireResponse
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Response{
		ScrollID:     w.ScrollID,
		TotalHits:    int64(w.Hits.Total),
		Hits:         w.Hits.Hits,
		Aggregations: w.Aggregations,
	}, nil
}
