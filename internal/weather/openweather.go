package weather

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"libraryfinder/internal/apiclient"
	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
)

const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

var ErrMissingAPIKey = errors.New("openweather: api key not configured")

type OpenWeatherClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

type openWeatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

func (c *OpenWeatherClient) Current(ctx context.Context, marker places.Marker) (Reading, error) {
	if err := validate(marker); err != nil {
		return Reading{}, err
	}
	if c.APIKey == "" {
		return Reading{}, query.Permanent(ErrMissingAPIKey)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(marker.Location.Lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(marker.Location.Lng, 'f', 6, 64))
	params.Set("units", "imperial")
	params.Set("appid", c.APIKey)

	base := c.BaseURL
	if base == "" {
		base = DefaultOpenWeatherURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	var resp openWeatherResponse
	if err := apiclient.GetJSON(ctx, client, c.Logger, "openweather", base, "/weather", params, &resp); err != nil {
		return Reading{}, err
	}
	text := "Unknown"
	if len(resp.Weather) > 0 && resp.Weather[0].Main != "" {
		text = resp.Weather[0].Main
	}
	return Reading{Temp: resp.Main.Temp, Text: text, WindSpeed: resp.Wind.Speed}, nil
}
