// Package codec converts between search values and Go types using the
// configured date pattern.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/search/datefmt"
)

var timeType = reflect.TypeOf(time.Time{})

// fallbackLayouts are tried after the configured pattern when parsing strings.
var fallbackLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// Codec formats date values for queries and decodes hit sources.
// It is immutable and safe for concurrent use.
type Codec struct {
	layout datefmt.Layout
	loc    *time.Location
}

// New creates a codec for pattern. Epoch values are rendered in UTC.
func New(pattern string) (*Codec, error) {
	l, err := datefmt.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("date format: %w", err)
	}
	return &Codec{layout: l, loc: time.UTC}, nil
}

// Default returns a codec for datefmt.DefaultPattern.
func Default() *Codec {
	return &Codec{layout: datefmt.MustParse(datefmt.DefaultPattern), loc: time.UTC}
}

// Pattern returns the configured date pattern.
func (c *Codec) Pattern() string { return c.layout.Pattern() }

// IsDate reports whether v is a temporal value.
func IsDate(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return t != nil
	default:
		return false
	}
}

// FormatDate renders a date-like value with the configured pattern.
// Accepted: time.Time, *time.Time, integer or float epoch milliseconds,
// json.Number, and strings in the configured pattern or RFC 3339.
func (c *Codec) FormatDate(v any) (string, error) {
	t, err := c.ToTime(v)
	if err != nil {
		return "", err
	}
	return c.layout.Format(t), nil
}

// ToTime interprets v as a point in time.
func (c *Codec) ToTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case int:
		return c.fromMillis(float64(t)), nil
	case int32:
		return c.fromMillis(float64(t)), nil
	case int64:
		return c.fromMillis(float64(t)), nil
	case uint64:
		return c.fromMillis(float64(t)), nil
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			return c.fromMillis(t), nil
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return c.fromMillis(f), nil
		}
	case string:
		if parsed, ok := c.parseString(t); ok {
			return parsed, nil
		}
	}
	return time.Time{}, &domain.FormatError{Pattern: c.layout.Pattern(), Value: v}
}

func (c *Codec) fromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).In(c.loc)
}

func (c *Codec) parseString(s string) (time.Time, bool) {
	if t, err := c.layout.Parse(s); err == nil {
		return t, true
	}
	for _, l := range fallbackLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return c.fromMillis(float64(ms)), true
	}
	return time.Time{}, false
}

// Decode copies a hit source into target, matching struct fields by their
// json tags and parsing time.Time fields with the configured pattern.
func (c *Codec) Decode(source map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook:       mapstructure.DecodeHookFuncType(c.timeHook),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(source); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	return nil
}

func (c *Codec) timeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	if from == timeType {
		return data, nil
	}
	t, err := c.ToTime(data)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// LookupID returns the value at path in a JSON document.
// The second result is false when the path does not exist.
func LookupID(doc []byte, path string) (string, bool) {
	r := gjson.GetBytes(doc, path)
	if !r.Exists() {
		return "", false
	}
	return r.String(), true
}
