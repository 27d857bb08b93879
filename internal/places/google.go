package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"libraryfinder/internal/apiclient"
	"libraryfinder/internal/query"
)

const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/place"

var ErrMissingAPIKey = errors.New("google places: api key not configured")

// GoogleClient uses Places Nearby Search, then Place Details for phone and website.
type GoogleClient struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Timeout      time.Duration
	RadiusMeters int
	PlaceType    string
	// DetailsConcurrency bounds parallel Place Details calls.
	DetailsConcurrency int
	Logger             *slog.Logger
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googlePlace struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity,omitempty"`
	Geometry struct {
		Location googleLatLng `json:"location"`
	} `json:"geometry"`
}

type googleNearbyResponse struct {
	Results      []googlePlace `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type googleDetailsResponse struct {
	Result struct {
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
	} `json:"result"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *GoogleClient) NearbyPlaces(ctx context.Context, lat, lng float64) ([]Marker, error) {
	if err := validate(lat, lng); err != nil {
		return nil, err
	}
	if c.APIKey == "" {
		return nil, query.Permanent(ErrMissingAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, c.effectiveTimeout())
	defer cancel()

	placeType := c.PlaceType
	if placeType == "" {
		placeType = DefaultAmenity
	}
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("radius", strconv.Itoa(radiusOrDefault(c.RadiusMeters)))
	params.Set("type", placeType)
	params.Set("key", c.APIKey)

	var nearby googleNearbyResponse
	if err := c.get(ctx, "/nearbysearch/json", params, &nearby); err != nil {
		return nil, err
	}
	if err := statusError(nearby.Status, nearby.ErrorMessage); err != nil {
		return nil, err
	}

	markers := make([]Marker, len(nearby.Results))
	for i, p := range nearby.Results {
		markers[i] = Marker{
			ID:       p.PlaceID,
			Location: geoPoint(p.Geometry.Location.Lat, p.Geometry.Location.Lng),
			Name:     p.Name,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailsConcurrency())
	for i := range markers {
		g.Go(func() error {
			phone, website, err := c.details(gctx, markers[i].ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger().Warn("place details failed", "place_id", markers[i].ID, "error", err)
				return nil
			}
			markers[i].PhoneNumber = phone
			markers[i].Website = website
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return markers, nil
}

func (c *GoogleClient) details(ctx context.Context, placeID string) (string, string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "formatted_phone_number,website")
	params.Set("key", c.APIKey)

	var resp googleDetailsResponse
	if err := c.get(ctx, "/details/json", params, &resp); err != nil {
		return "", "", err
	}
	if err := statusError(resp.Status, resp.ErrorMessage); err != nil {
		return "", "", err
	}
	return resp.Result.FormattedPhoneNumber, resp.Result.Website, nil
}

func (c *GoogleClient) get(ctx context.Context, path string, params url.Values, target any) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultGoogleURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.effectiveTimeout()}
	}
	return apiclient.GetJSON(ctx, client, c.logger(), "google-places", base, path, params, target)
}

// statusError maps the body-level status Google returns alongside HTTP 200.
func statusError(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return fmt.Errorf("google places: %s %s", status, message)
	default:
		return query.Permanent(fmt.Errorf("google places: %s %s", status, message))
	}
}

func (c *GoogleClient) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 15 * time.Second
}

func (c *GoogleClient) detailsConcurrency() int {
	if c.DetailsConcurrency > 0 {
		return c.DetailsConcurrency
	}
	return 4
}

func (c *GoogleClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
