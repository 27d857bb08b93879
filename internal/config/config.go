package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PlacesOverpass = "overpass"
	PlacesGoogle   = "google"

	WeatherOpenMeteo   = "open-meteo"
	WeatherOpenWeather = "openweather"

	DefaultCanonicalURL = "https://keiserjb-library-finder.netlify.app/"
)

type Config struct {
	ServerAddr   string
	MapsAPIKey   string
	CanonicalURL string

	PlacesProvider     string
	OverpassURL        string
	OverpassURLs       []string
	GooglePlacesURL    string
	PlacesRadiusMeters int
	PlacesTimeoutSec   int
	PlacesFreshSec     int

	WeatherProvider string
	WeatherURL      string
	WeatherAPIKey   string
	WeatherFreshSec int

	FetchRetries       int
	SessionIdleMinutes int
	RateLimitPerSecond float64
	RateLimitBurst     int
	CORSOrigins        []string
	LogLevel           slog.Level
}

func Load(path string) (Config, error) {
	cfg := Config{
		ServerAddr:         ":8080",
		PlacesProvider:     PlacesOverpass,
		PlacesRadiusMeters: 5000,
		PlacesTimeoutSec:   15,
		PlacesFreshSec:     300,
		WeatherProvider:    WeatherOpenMeteo,
		WeatherFreshSec:    300,
		FetchRetries:       3,
		SessionIdleMinutes: 30,
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
		LogLevel:           slog.LevelInfo,
	}

	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.MapsAPIKey = strings.TrimSpace(os.Getenv("MAPS_API_KEY"))
	cfg.CanonicalURL = strings.TrimSpace(getenv("CANONICAL_URL", DefaultCanonicalURL))

	cfg.PlacesProvider = strings.ToLower(getenv("PLACES_PROVIDER", cfg.PlacesProvider))
	cfg.OverpassURL = os.Getenv("OVERPASS_URL")
	if v := os.Getenv("OVERPASS_URLS"); v != "" {
		cfg.OverpassURLs = splitAndTrim(v)
	}
	cfg.GooglePlacesURL = os.Getenv("GOOGLE_PLACES_URL")

	cfg.WeatherProvider = strings.ToLower(getenv("WEATHER_PROVIDER", cfg.WeatherProvider))
	cfg.WeatherURL = os.Getenv("WEATHER_URL")
	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitAndTrim(v)
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"PLACES_RADIUS_METERS", &cfg.PlacesRadiusMeters},
		{"PLACES_TIMEOUT_SECONDS", &cfg.PlacesTimeoutSec},
		{"PLACES_FRESH_SECONDS", &cfg.PlacesFreshSec},
		{"WEATHER_FRESH_SECONDS", &cfg.WeatherFreshSec},
		{"FETCH_RETRIES", &cfg.FetchRetries},
		{"SESSION_IDLE_MINUTES", &cfg.SessionIdleMinutes},
		{"RATE_LIMIT_BURST", &cfg.RateLimitBurst},
	}
	for _, item := range ints {
		if v := os.Getenv(item.key); v != "" {
			if err := parseInt(item.target, v); err != nil {
				return Config{}, fmt.Errorf("%s: %w", item.key, err)
			}
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_SECOND"); v != "" {
		if err := parseFloat(&cfg.RateLimitPerSecond, v); err != nil {
			return Config{}, fmt.Errorf("RATE_LIMIT_PER_SECOND: %w", err)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.PlacesProvider {
	case PlacesOverpass, PlacesGoogle:
	default:
		return fmt.Errorf("PLACES_PROVIDER: unknown provider %q", c.PlacesProvider)
	}
	switch c.WeatherProvider {
	case WeatherOpenMeteo, WeatherOpenWeather:
	default:
		return fmt.Errorf("WEATHER_PROVIDER: unknown provider %q", c.WeatherProvider)
	}
	if c.FetchRetries < 0 {
		return errors.New("FETCH_RETRIES: must not be negative")
	}
	return nil
}

// HasMapsKey reports whether the map widget can be loaded at all.
func (c Config) HasMapsKey() bool { return c.MapsAPIKey != "" }

func (c Config) PlacesTimeout() time.Duration {
	return time.Duration(c.PlacesTimeoutSec) * time.Second
}

func (c Config) PlacesFreshness() time.Duration {
	return time.Duration(c.PlacesFreshSec) * time.Second
}

func (c Config) WeatherFreshness() time.Duration {
	return time.Duration(c.WeatherFreshSec) * time.Second
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	var parsed int
	_, err := fmt.Sscanf(value, "%d", &parsed)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseFloat(target *float64, value string) error {
	var parsed float64
	_, err := fmt.Sscanf(value, "%g", &parsed)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
