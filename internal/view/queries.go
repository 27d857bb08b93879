package view

import (
	"context"
	"log/slog"
	"time"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
	"libraryfinder/internal/weather"
)

const DefaultWeatherStaleTime = 5 * time.Minute

type QueryOptions struct {
	PlacesStaleTime  time.Duration
	WeatherStaleTime time.Duration
	Timeout          time.Duration
	Retry            query.RetryPolicy
	Logger           *slog.Logger
	Now              func() time.Time
}

// Queries binds the provider clients to keyed fetch caches shared by every session.
type Queries struct {
	placesAPI  places.API
	weatherAPI weather.API
	places     *query.Client[[]places.Marker]
	weather    *query.Client[weather.Reading]
	// lookups serves caller-supplied marker positions, kept apart from
	// weather so a lookup can never fill a session's entry.
	lookups *query.Client[weather.Reading]
}

func NewQueries(placesAPI places.API, weatherAPI weather.API, opts QueryOptions) *Queries {
	if opts.WeatherStaleTime == 0 {
		opts.WeatherStaleTime = DefaultWeatherStaleTime
	}
	weatherOpts := query.Options{
		Name:      "weather",
		StaleTime: opts.WeatherStaleTime,
		Timeout:   opts.Timeout,
		Retry:     opts.Retry,
		Logger:    opts.Logger,
		Now:       opts.Now,
	}
	lookupOpts := weatherOpts
	lookupOpts.Name = "weather_lookup"
	return &Queries{
		placesAPI:  placesAPI,
		weatherAPI: weatherAPI,
		places: query.New[[]places.Marker](query.Options{
			Name:      "nearby_places",
			StaleTime: opts.PlacesStaleTime,
			Timeout:   opts.Timeout,
			Retry:     opts.Retry,
			Logger:    opts.Logger,
			Now:       opts.Now,
		}),
		weather: query.New[weather.Reading](weatherOpts),
		lookups: query.New[weather.Reading](lookupOpts),
	}
}

// NearbyPlaces is disabled (query.ErrDisabled) until a position is set.
func (q *Queries) NearbyPlaces(ctx context.Context, pos *geo.Coordinate) ([]places.Marker, error) {
	return q.places.Fetch(ctx, geo.KeyOf(pos), func(ctx context.Context) ([]places.Marker, error) {
		return q.placesAPI.NearbyPlaces(ctx, pos.Lat, pos.Lng)
	})
}

// Weather is disabled (query.ErrDisabled) until a marker is selected.
func (q *Queries) Weather(ctx context.Context, marker *places.Marker) (weather.Reading, error) {
	return q.weather.Fetch(ctx, markerKey(marker), func(ctx context.Context) (weather.Reading, error) {
		return q.weatherAPI.Current(ctx, *marker)
	})
}

// WeatherAt looks up weather for a marker whose position came from outside
// a session. Entries are keyed by id and position.
func (q *Queries) WeatherAt(ctx context.Context, marker *places.Marker) (weather.Reading, error) {
	key := markerKey(marker)
	if key != "" {
		key += "@" + marker.Location.Key()
	}
	return q.lookups.Fetch(ctx, key, func(ctx context.Context) (weather.Reading, error) {
		return q.weatherAPI.Current(ctx, *marker)
	})
}

func (q *Queries) cachedPlaces(pos geo.Coordinate) ([]places.Marker, bool) {
	v, _, ok := q.places.Peek(pos.Key())
	return v, ok
}

func (q *Queries) cachedWeather(id string) (weather.Reading, bool) {
	v, _, ok := q.weather.Peek(id)
	return v, ok
}

func markerKey(m *places.Marker) string {
	if m == nil {
		return ""
	}
	return m.ID
}
