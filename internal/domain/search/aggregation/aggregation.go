// Package aggregation builds nested terms aggregations and reads their buckets back.
package aggregation

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// BucketSize is the number of buckets requested per level.
const BucketSize = 100

// Field is a requested terms aggregation with optional nested children.
type Field struct {
	Name string  `json:"field"`
	Sub  []Field `json:"sub,omitempty"`
}

// Result is one bucket of a terms aggregation.
type Result struct {
	Key      string   `json:"key"`
	DocCount int64    `json:"doc_count"`
	Field    string   `json:"field"`
	Sub      []Result `json:"sub,omitempty"`
}

// Request maps aggregation names to their DSL bodies.
type Request map[string]any

// Name returns the aggregation name used for field.
func Name(field string) string { return field + "_aggs" }

// Build creates the aggregation request for fields. Each field becomes a
// terms aggregation on its "<field>.raw" keyword subfield, with children
// nested under it. Returns nil for no fields.
func Build(fields []Field) Request {
	if len(fields) == 0 {
		return nil
	}
	req := make(Request, len(fields))
	for _, f := range fields {
		body := map[string]any{
			"terms": map[string]any{
				"field": f.Name + ".raw",
				"size":  BucketSize,
			},
		}
		if sub := Build(f.Sub); sub != nil {
			body["aggs"] = map[string]any(sub)
		}
		req[Name(f.Name)] = body
	}
	return req
}

// Read flattens the aggregations section of a response into results for
// fields. Each level reads its own sub-fields against its own bucket.
// Aggregations missing from the response are skipped.
func Read(aggs map[string]json.RawMessage, fields []Field) ([]Result, error) {
	if len(aggs) == 0 || len(fields) == 0 {
		return nil, nil
	}
	level := make(map[string]gjson.Result, len(aggs))
	for name, raw := range aggs {
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("aggregation %q: invalid JSON", name)
		}
		level[name] = gjson.ParseBytes(raw)
	}
	return readLevel(level, fields)
}

func readLevel(level map[string]gjson.Result, fields []Field) ([]Result, error) {
	var out []Result
	for _, f := range fields {
		agg, ok := level[Name(f.Name)]
		if !ok {
			continue
		}
		buckets := agg.Get("buckets")
		if !buckets.IsArray() {
			return nil, fmt.Errorf("aggregation %q: missing buckets", Name(f.Name))
		}
		for _, b := range buckets.Array() {
			r, err := readBucket(b, f)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func readBucket(b gjson.Result, f Field) (Result, error) {
	if !b.IsObject() {
		return Result{}, fmt.Errorf("aggregation %q: bucket is not an object", Name(f.Name))
	}
	key := b.Get("key_as_string")
	if !key.Exists() {
		key = b.Get("key")
	}
	if !key.Exists() {
		return Result{}, fmt.Errorf("aggregation %q: bucket without key", Name(f.Name))
	}
	r := Result{
		Key:      key.String(),
		DocCount: b.Get("doc_count").Int(),
		Field:    f.Name,
	}
	if len(f.Sub) == 0 {
		return r, nil
	}

	nested := make(map[string]gjson.Result)
	b.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() {
			nested[k.String()] = v
		}
		return true
	})
	sub, err := readLevel(nested, f.Sub)
	if err != nil {
		return Result{}, err
	}
	r.Sub = sub
	return r, nil
}
