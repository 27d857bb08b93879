// Package places looks up libraries near a coordinate.
package places

import (
	"context"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/query"
)

const (
	DefaultAmenity      = "library"
	DefaultRadiusMeters = 5000
)

// Marker is one place-of-interest result.
type Marker struct {
	ID          string         `json:"id"`
	Location    geo.Coordinate `json:"location"`
	Name        string         `json:"name"`
	PhoneNumber string         `json:"phone_number"`
	Website     string         `json:"website"`
}

type API interface {
	NearbyPlaces(ctx context.Context, lat, lng float64) ([]Marker, error)
}

func validate(lat, lng float64) error {
	return query.Permanent(geo.Coordinate{Lat: lat, Lng: lng}.Validate())
}

func radiusOrDefault(r int) int {
	if r > 0 {
		return r
	}
	return DefaultRadiusMeters
}

func geoPoint(lat, lng float64) geo.Coordinate {
	return geo.Coordinate{Lat: lat, Lng: lng}
}
