package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libraryfinder/internal/config"
	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
	"libraryfinder/internal/settings"
	"libraryfinder/internal/view"
	"libraryfinder/internal/weather"
	"libraryfinder/internal/web"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if !cfg.HasMapsKey() {
		logger.Warn("MAPS_API_KEY not set; the page will not load the map")
	}

	placesAPI, err := newPlacesAPI(cfg, logger)
	if err != nil {
		logger.Error("configure places provider", "error", err)
		os.Exit(1)
	}
	weatherAPI := newWeatherAPI(cfg, logger)

	retry := query.DefaultRetry()
	retry.MaxRetries = cfg.FetchRetries
	queries := view.NewQueries(placesAPI, weatherAPI, view.QueryOptions{
		PlacesStaleTime:  cfg.PlacesFreshness(),
		WeatherStaleTime: cfg.WeatherFreshness(),
		Timeout:          fetchBudget(cfg.PlacesTimeout(), retry),
		Retry:            retry,
		Logger:           logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapSettings := settings.Default()
	sessions := web.NewSessions(ctx, queries, cfg.SessionIdle(), view.Options{
		Center: mapSettings.Center,
		Zoom:   mapSettings.Zoom,
		Logger: logger,
	})
	defer sessions.CloseAll()

	webServer, err := web.NewServer(queries, sessions, web.Options{
		MapsAPIKey:   cfg.MapsAPIKey,
		CanonicalURL: cfg.CanonicalURL,
		Map:          mapSettings,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("load templates", "error", err)
		os.Exit(1)
	}

	handler := web.Wrap(webServer.Routes(), web.MiddlewareOptions{
		Logger:             logger,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSOrigins:        cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Long-polls hold a response for up to 25s.
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("http server listening",
			"addr", cfg.ServerAddr,
			"places_provider", cfg.PlacesProvider,
			"weather_provider", cfg.WeatherProvider,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if level <= slog.LevelDebug {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newPlacesAPI(cfg config.Config, logger *slog.Logger) (places.API, error) {
	switch cfg.PlacesProvider {
	case config.PlacesGoogle:
		if !cfg.HasMapsKey() {
			return nil, places.ErrMissingAPIKey
		}
		return &places.GoogleClient{
			BaseURL:      cfg.GooglePlacesURL,
			APIKey:       cfg.MapsAPIKey,
			Timeout:      cfg.PlacesTimeout(),
			RadiusMeters: cfg.PlacesRadiusMeters,
			Logger:       logger,
		}, nil
	default:
		return &places.OverpassClient{
			BaseURL:      cfg.OverpassURL,
			MirrorURLs:   cfg.OverpassURLs,
			Timeout:      cfg.PlacesTimeout(),
			RadiusMeters: cfg.PlacesRadiusMeters,
			Logger:       logger,
		}, nil
	}
}

func newWeatherAPI(cfg config.Config, logger *slog.Logger) weather.API {
	if cfg.WeatherProvider == config.WeatherOpenWeather {
		return &weather.OpenWeatherClient{
			BaseURL: cfg.WeatherURL,
			APIKey:  cfg.WeatherAPIKey,
			Logger:  logger,
		}
	}
	return &weather.OpenMeteoClient{
		BaseURL: cfg.WeatherURL,
		Logger:  logger,
	}
}

// fetchBudget covers every attempt plus the backoff between them.
func fetchBudget(perAttempt time.Duration, retry query.RetryPolicy) time.Duration {
	if perAttempt <= 0 {
		perAttempt = 15 * time.Second
	}
	budget := time.Duration(retry.MaxRetries+1) * perAttempt
	for attempt := 0; attempt < retry.MaxRetries; attempt++ {
		budget += retry.Delay(attempt)
	}
	return budget
}
