package geo

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) Validate() error {
	if !c.Valid() {
		return fmt.Errorf("%w: %v,%v", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	return nil
}

// Key identifies a coordinate for caching. Positions closer than ~0.1m share a key.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func (c Coordinate) String() string {
	return c.Key()
}

// KeyOf returns the cache key of p, or "" when no position is set.
func KeyOf(p *Coordinate) string {
	if p == nil {
		return ""
	}
	return p.Key()
}
