// Package locate resolves the viewer's current position and hands it to the map.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"libraryfinder/internal/geo"
)

// Code values 1-3 match the browser's GeolocationPositionError codes.
type Code int

const (
	PermissionDenied    Code = 1
	PositionUnavailable Code = 2
	Timeout             Code = 3
	Unsupported         Code = 4
)

const DefaultTimeout = 10 * time.Second

type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("locate: %s: %v", e.Message(), e.Err)
	}
	return "locate: " + e.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown in the location control.
func (e *Error) Message() string {
	switch e.Code {
	case PermissionDenied:
		return "Location permission denied"
	case Timeout:
		return "Timed out finding your location"
	case Unsupported:
		return "Geolocation is not supported by this browser"
	default:
		return "Current location unavailable"
	}
}

type Locator interface {
	CurrentPosition(ctx context.Context) (geo.Coordinate, error)
}

type LocatorFunc func(ctx context.Context) (geo.Coordinate, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	return f(ctx)
}

type Control struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Trigger resolves the position and calls moveTo with it. A locate failure
// yields a visible message and a *Error; an error from moveTo is returned as is.
func (c *Control) Trigger(ctx context.Context, locator Locator, moveTo func(geo.Coordinate) error) (string, error) {
	pos, err := c.resolve(ctx, locator)
	if err != nil {
		var locErr *Error
		if !errors.As(err, &locErr) {
			locErr = &Error{Code: PositionUnavailable, Err: err}
		}
		c.logger().Info("current location failed", "code", int(locErr.Code), "error", err)
		return locErr.Message(), locErr
	}
	if err := moveTo(pos); err != nil {
		return "", err
	}
	return "", nil
}

func (c *Control) resolve(ctx context.Context, locator Locator) (geo.Coordinate, error) {
	if locator == nil {
		return geo.Coordinate{}, &Error{Code: Unsupported}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := locator.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return geo.Coordinate{}, &Error{Code: Timeout, Err: err}
		}
		return geo.Coordinate{}, err
	}
	if err := pos.Validate(); err != nil {
		return geo.Coordinate{}, &Error{Code: PositionUnavailable, Err: err}
	}
	return pos, nil
}

func (c *Control) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
