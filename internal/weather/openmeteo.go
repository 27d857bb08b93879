package weather

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"libraryfinder/internal/apiclient"
	"libraryfinder/internal/places"
)

const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1"

// OpenMeteoClient needs no credential.
type OpenMeteoClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

type openMeteoResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, marker places.Marker) (Reading, error) {
	if err := validate(marker); err != nil {
		return Reading{}, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(marker.Location.Lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(marker.Location.Lng, 'f', 6, 64))
	params.Set("current_weather", "true")
	params.Set("temperature_unit", "fahrenheit")
	params.Set("windspeed_unit", "mph")

	base := c.BaseURL
	if base == "" {
		base = DefaultOpenMeteoURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	var resp openMeteoResponse
	if err := apiclient.GetJSON(ctx, client, c.Logger, "open-meteo", base, "/forecast", params, &resp); err != nil {
		return Reading{}, err
	}
	return Reading{
		Temp:      resp.CurrentWeather.Temperature,
		Text:      DescribeCode(resp.CurrentWeather.WeatherCode),
		WindSpeed: resp.CurrentWeather.WindSpeed,
	}, nil
}

// DescribeCode maps a WMO weather interpretation code to a short label.
func DescribeCode(code int) string {
	switch code {
	case 0:
		return "Clear"
	case 1:
		return "Mainly Clear"
	case 2:
		return "Partly Cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing Drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing Rain"
	case 71, 73, 75, 77:
		return "Snow"
	case 80, 81, 82:
		return "Rain Showers"
	case 85, 86:
		return "Snow Showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with Hail"
	}
	return "Unknown"
}
