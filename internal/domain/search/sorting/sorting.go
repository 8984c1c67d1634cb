// Package sorting describes result ordering, including geo-distance sorts.
package sorting

import (
	"fmt"

	"github.com/kailas-cloud/sift/internal/domain/geo"
)

// Order is the sort direction.
type Order string

// Order constants.
const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// IsValid checks if the order is one of the supported values.
func (o Order) IsValid() bool {
	return o == Asc || o == Desc
}

// Key is a single sort key: a plain field sort or a geo-distance sort.
type Key struct {
	field  string
	order  Order
	origin *geo.Point
	unit   geo.Unit
}

// ByField creates a plain field sort.
func ByField(field string, order Order) (Key, error) {
	if field == "" {
		return Key{}, fmt.Errorf("sort field is required")
	}
	if !order.IsValid() {
		return Key{}, fmt.Errorf("invalid sort order %q", order)
	}
	return Key{field: field, order: order}, nil
}

// ByDistance creates a geo-distance sort from origin over a geo_point field.
// An empty unit defaults to kilometers.
func ByDistance(field string, origin geo.Point, unit geo.Unit, order Order) (Key, error) {
	if field == "" {
		return Key{}, fmt.Errorf("sort field is required")
	}
	if err := origin.Validate(); err != nil {
		return Key{}, fmt.Errorf("sort %q: %w", field, err)
	}
	if unit == "" {
		unit = geo.Kilometers
	}
	if !unit.IsValid() {
		return Key{}, fmt.Errorf("invalid distance unit %q", unit)
	}
	if !order.IsValid() {
		return Key{}, fmt.Errorf("invalid sort order %q", order)
	}
	return Key{field: field, order: order, origin: &origin, unit: unit}, nil
}

// Field returns the sorted field.
func (k Key) Field() string { return k.field }

// Order returns the sort direction.
func (k Key) Order() Order { return k.order }

// IsGeo reports whether the key sorts by distance.
func (k Key) IsGeo() bool { return k.origin != nil }

// Origin returns the distance origin, zero for field sorts.
func (k Key) Origin() geo.Point {
	if k.origin == nil {
		return geo.Point{}
	}
	return *k.origin
}

// Unit returns the distance unit, empty for field sorts.
func (k Key) Unit() geo.Unit { return k.unit }

// Source renders the key as an Elasticsearch sort clause.
func (k Key) Source() any {
	if k.origin == nil {
		return map[string]any{
			k.field: map[string]any{"order": string(k.order)},
		}
	}
	return map[string]any{
		"_geo_distance": map[string]any{
			k.field: k.origin.LonLat(),
			"order":  string(k.order),
			"unit":   string(k.unit),
		},
	}
}

// Descriptor is an ordered list of sort keys.
type Descriptor []Key

// GeoIndex returns the position of the first geo-distance key, or -1.
// The position matches the index of the distance in a hit's sort values.
func (d Descriptor) GeoIndex() int {
	for i, k := range d {
		if k.IsGeo() {
			return i
		}
	}
	return -1
}

// Source renders the descriptor as an Elasticsearch sort array.
// Empty descriptors render as nil.
func (d Descriptor) Source() []any {
	if len(d) == 0 {
		return nil
	}
	out := make([]any, len(d))
	for i, k := range d {
		out[i] = k.Source()
	}
	return out
}
