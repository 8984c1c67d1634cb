package materialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/sift/internal/domain/search/codec"
)

// Shape selects how a hit source becomes a result.
// The set of shapes is closed: use Typed or RawText.
type Shape[T any] interface {
	decode(c *codec.Codec, source json.RawMessage) (T, error)
}

type typed[T any] struct{}

// Typed decodes each source into T (struct or map) with the codec,
// matching struct fields by their json tags.
func Typed[T any]() Shape[T] { return typed[T]{} }

func (typed[T]) decode(c *codec.Codec, source json.RawMessage) (T, error) {
	var out T
	m, err := sourceMap(source)
	if err != nil {
		return out, err
	}
	if err := c.Decode(m, &out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}
	return out, nil
}

type rawText struct{}

// RawText returns each source as JSON text.
func RawText() Shape[string] { return rawText{} }

func (rawText) decode(_ *codec.Codec, source json.RawMessage) (string, error) {
	return string(source), nil
}

// sourceMap decodes a hit source keeping numbers as json.Number.
// Missing sources decode as an empty map.
func sourceMap(source json.RawMessage) (map[string]any, error) {
	m := make(map[string]any)
	if len(bytes.TrimSpace(source)) == 0 || string(source) == "null" {
		return m, nil
	}
	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}
