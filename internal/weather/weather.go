// Package weather fetches current conditions for a selected place.
package weather

import (
	"context"
	"errors"

	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
)

var ErrMissingMarker = errors.New("weather: marker id required")

// Reading is current weather in imperial units.
type Reading struct {
	Temp      float64 `json:"temp"`
	Text      string  `json:"text"`
	WindSpeed float64 `json:"windSpeed"`
}

type API interface {
	Current(ctx context.Context, marker places.Marker) (Reading, error)
}

func validate(marker places.Marker) error {
	if marker.ID == "" {
		return query.Permanent(ErrMissingMarker)
	}
	return query.Permanent(marker.Location.Validate())
}
