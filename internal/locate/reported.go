package locate

import (
	"context"

	"libraryfinder/internal/geo"
)

// Reported is the outcome of navigator.geolocation as posted by the page:
// either a position or a failure code.
type Reported struct {
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
	Code Code     `json:"code,omitempty"`
}

func (r Reported) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	if r.Code != 0 {
		return geo.Coordinate{}, &Error{Code: r.Code}
	}
	if r.Lat == nil || r.Lng == nil {
		return geo.Coordinate{}, &Error{Code: PositionUnavailable}
	}
	return geo.Coordinate{Lat: *r.Lat, Lng: *r.Lng}, nil
}
