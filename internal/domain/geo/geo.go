package geo

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

// DistancePlaces is the number of decimals kept for a materialized distance.
const DistancePlaces = 5

// Unit is a distance unit understood by the search engine.
type Unit string

// Unit constants.
const (
	Kilometers Unit = "km"
	Meters     Unit = "m"
	Miles      Unit = "mi"
)

// IsValid checks if the unit is one of the supported values.
func (u Unit) IsValid() bool {
	return u == Kilometers || u == Meters || u == Miles
}

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that latitude is in [-90,90] and longitude in [-180,180].
func (p Point) Validate() error {
	if !ValidateCoordinates(p.Lat, p.Lon) {
		return fmt.Errorf("coordinates out of range: lat=%v lon=%v", p.Lat, p.Lon)
	}
	return nil
}

// LonLat returns the point in GeoJSON order.
func (p Point) LonLat() []float64 {
	return []float64{p.Lon, p.Lat}
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// RoundHalfDown rounds v to places decimals, resolving ties toward zero.
//
// Rounding works on the shortest decimal representation of v, so 1.000005
// is a tie (-> 1.00000) even though its binary value is slightly above it.
func RoundHalfDown(v float64, places int) (json.Number, error) {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'g', -1, 64))
	if !ok {
		return "", fmt.Errorf("distance %v is not a finite number", v)
	}

	neg := r.Sign() < 0
	if neg {
		r.Neg(r)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	q, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	// rem/denom > 1/2 rounds up; exactly 1/2 stays.
	if new(big.Int).Lsh(rem, 1).Cmp(r.Denom()) > 0 {
		q.Add(q, big.NewInt(1))
	}

	out := new(big.Rat).SetFrac(q, scale)
	if neg && q.Sign() != 0 {
		out.Neg(out)
	}
	return json.Number(out.FloatString(places)), nil
}

// ParseDistance reads a sort value returned by the engine as a distance.
func ParseDistance(v any) (float64, error) {
	switch d := v.(type) {
	case float64:
		return d, nil
	case float32:
		return float64(d), nil
	case int:
		return float64(d), nil
	case int64:
		return float64(d), nil
	case json.Number:
		f, err := d.Float64()
		if err != nil {
			return 0, fmt.Errorf("parse distance %q: %w", d, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return 0, fmt.Errorf("parse distance %q: %w", d, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported distance value %T", v)
	}
}
