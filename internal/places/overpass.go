package places

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"libraryfinder/internal/apiclient"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassClient finds amenities in OpenStreetMap. It needs no credential.
type OverpassClient struct {
	BaseURL      string
	MirrorURLs   []string
	HTTPClient   *http.Client
	Timeout      time.Duration
	RadiusMeters int
	Amenity      string
	Logger       *slog.Logger
}

func (c *OverpassClient) NearbyPlaces(ctx context.Context, lat, lng float64) ([]Marker, error) {
	if err := validate(lat, lng); err != nil {
		return nil, err
	}
	amenity := c.Amenity
	if amenity == "" {
		amenity = DefaultAmenity
	}
	radius := radiusOrDefault(c.RadiusMeters)

	query := fmt.Sprintf(`[out:json][timeout:25];
(
  node(around:%d,%.6f,%.6f)["amenity"="%s"];
  way(around:%d,%.6f,%.6f)["amenity"="%s"];
);
out center;`, radius, lat, lng, amenity, radius, lat, lng, amenity)

	ctx, cancel := context.WithTimeout(ctx, c.effectiveTimeout())
	defer cancel()

	elements, err := c.runQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	markers := make([]Marker, 0, len(elements))
	for _, el := range elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		markers = append(markers, Marker{
			ID:          fmt.Sprintf("%s/%d", el.Type, el.ID),
			Location:    geoPoint(lat, lon),
			Name:        displayName(el.Tags),
			PhoneNumber: firstTag(el.Tags, "phone", "contact:phone"),
			Website:     firstTag(el.Tags, "website", "contact:website", "url"),
		})
	}
	return markers, nil
}

// runQuery tries each endpoint once, moving on only for transient statuses.
// Backoff between rounds belongs to the fetch layer.
func (c *OverpassClient) runQuery(ctx context.Context, query string) ([]overpassElement, error) {
	var lastErr error
	for _, base := range c.baseURLs() {
		elements, err := c.runQueryOnce(ctx, base, query)
		if err == nil {
			return elements, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !apiclient.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *OverpassClient) runQueryOnce(ctx context.Context, base string, query string) ([]overpassElement, error) {
	params := url.Values{}
	params.Set("data", query)

	var decoded overpassResponse
	if err := apiclient.GetJSON(ctx, c.httpClient(), c.Logger, "overpass", base, "", params, &decoded); err != nil {
		return nil, err
	}
	return decoded.Elements, nil
}

func (c *OverpassClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.effectiveTimeout()}
}

func (c *OverpassClient) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 15 * time.Second
}

func (c *OverpassClient) baseURLs() []string {
	if len(c.MirrorURLs) > 0 {
		return c.MirrorURLs
	}
	if c.BaseURL != "" {
		return []string{c.BaseURL}
	}
	return []string{DefaultOverpassURL}
}

func displayName(tags map[string]string) string {
	if name := firstTag(tags, "name", "official_name", "operator"); name != "" {
		return name
	}
	return "Library"
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}

type overpassLatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassLatLon   `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}
