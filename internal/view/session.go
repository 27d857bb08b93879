// Package view is the map view: per-viewer selection state driven by map
// clicks, marker clicks and the current-location control.
//
// Each Session owns its state on a single goroutine. Operations and fetch
// results are messages applied in order on that goroutine; a fetch result
// is applied only while its key (clicked coordinate or selected marker id)
// is still the current one, so a slow response for an old click can never
// overwrite a newer search.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/places"
	"libraryfinder/internal/settings"
)

var (
	ErrSessionClosed = errors.New("view: session closed")
	ErrUnknownMarker = errors.New("view: marker not in current results")
)

type Options struct {
	Center geo.Coordinate
	Zoom   int
	Logger *slog.Logger
}

type state struct {
	ctx      context.Context
	center   geo.Coordinate
	zoom     int
	clicked  *geo.Coordinate
	search   SearchState
	selected *places.Marker
	weather  WeatherState
	version  uint64
	waiters  []chan struct{}
}

type Session struct {
	id      string
	queries *Queries
	logger  *slog.Logger

	events chan func(*state)
	done   chan struct{}
	cancel context.CancelFunc
}

// Start creates a session and runs its loop until ctx ends or Close is called.
func Start(ctx context.Context, id string, queries *Queries, opts Options) *Session {
	if opts.Zoom == 0 {
		opts.Zoom = settings.DefaultZoom
	}
	if opts.Center == (geo.Coordinate{}) {
		opts.Center = settings.Center()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      id,
		queries: queries,
		logger:  logger.With("session_id", id),
		events:  make(chan func(*state)),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	st := &state{
		ctx:     ctx,
		center:  opts.Center,
		zoom:    opts.Zoom,
		search:  SearchState{Status: StatusIdle},
		weather: WeatherState{Status: StatusIdle},
	}
	go s.run(ctx, st)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context, st *state) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			ev(st)
		}
	}
}

// do applies fn on the session goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func(*state) error) error {
	errc := make(chan error, 1)
	ev := func(st *state) { errc <- fn(st) }
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// post delivers a fetch result; dropped once the session is gone.
func (s *Session) post(fn func(*state)) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// ClickMap starts a search at pos and clears the selected marker.
func (s *Session) ClickMap(ctx context.Context, pos geo.Coordinate) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	return s.do(ctx, func(st *state) error {
		s.search(st, pos)
		return nil
	})
}

// MoveTo pans and zooms to pos, then searches there. Used when the current
// location resolves.
func (s *Session) MoveTo(ctx context.Context, pos geo.Coordinate) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	return s.do(ctx, func(st *state) error {
		st.center = pos
		st.zoom = settings.LocateZoom
		s.search(st, pos)
		return nil
	})
}

// SelectMarker opens the popup for a marker of the current results and
// fetches its weather.
func (s *Session) SelectMarker(ctx context.Context, id string) error {
	return s.do(ctx, func(st *state) error {
		marker, ok := st.findMarker(id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMarker, id)
		}
		st.selected = &marker
		if reading, ok := s.queries.cachedWeather(marker.ID); ok {
			st.weather = WeatherState{Status: StatusReady, Reading: &reading}
			st.bump()
			return nil
		}
		st.weather = WeatherState{Status: StatusPending}
		st.bump()
		s.fetchWeather(st.ctx, marker)
		return nil
	})
}

// ClosePopup clears the selected marker whatever its weather status.
func (s *Session) ClosePopup(ctx context.Context) error {
	return s.do(ctx, func(st *state) error {
		st.selected = nil
		st.weather = WeatherState{Status: StatusIdle}
		st.bump()
		return nil
	})
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func(st *state) error {
		snap = st.snapshot(s.id)
		return nil
	})
	return snap, err
}

// Wait returns the first snapshot whose version is greater than since,
// blocking until a change or until ctx ends.
func (s *Session) Wait(ctx context.Context, since uint64) (Snapshot, error) {
	for {
		var snap Snapshot
		var changed chan struct{}
		err := s.do(ctx, func(st *state) error {
			if st.version > since {
				snap = st.snapshot(s.id)
				return nil
			}
			changed = make(chan struct{})
			st.waiters = append(st.waiters, changed)
			return nil
		})
		if err != nil {
			return Snapshot{}, err
		}
		if changed == nil {
			return snap, nil
		}
		select {
		case <-changed:
		case <-s.done:
			return Snapshot{}, ErrSessionClosed
		case <-ctx.Done():
			var snap Snapshot
			err := s.do(context.WithoutCancel(ctx), func(st *state) error {
				st.dropWaiter(changed)
				snap = st.snapshot(s.id)
				return nil
			})
			return snap, err
		}
	}
}

func (s *Session) search(st *state, pos geo.Coordinate) {
	st.clicked = &pos
	st.selected = nil
	st.weather = WeatherState{Status: StatusIdle}
	if markers, ok := s.queries.cachedPlaces(pos); ok {
		st.search = SearchState{Status: StatusReady, Markers: markers}
		st.bump()
		return
	}
	st.search = SearchState{Status: StatusPending}
	st.bump()
	s.fetchPlaces(st.ctx, pos)
}

func (s *Session) fetchPlaces(ctx context.Context, pos geo.Coordinate) {
	key := pos.Key()
	go func() {
		markers, err := s.queries.NearbyPlaces(ctx, &pos)
		s.post(func(st *state) {
			if geo.KeyOf(st.clicked) != key {
				s.logger.Debug("discarding superseded places result", "key", key)
				return
			}
			if err != nil {
				s.logger.Warn("nearby places fetch failed", "key", key, "error", err)
				st.search = SearchState{Status: StatusError}
			} else {
				st.search = SearchState{Status: StatusReady, Markers: markers}
			}
			st.bump()
		})
	}()
}

func (s *Session) fetchWeather(ctx context.Context, marker places.Marker) {
	go func() {
		reading, err := s.queries.Weather(ctx, &marker)
		s.post(func(st *state) {
			if st.selected == nil || st.selected.ID != marker.ID {
				s.logger.Debug("discarding superseded weather result", "marker_id", marker.ID)
				return
			}
			if err != nil {
				s.logger.Warn("weather fetch failed", "marker_id", marker.ID, "error", err)
				st.weather = WeatherState{Status: StatusError}
			} else {
				st.weather = WeatherState{Status: StatusReady, Reading: &reading}
			}
			st.bump()
		})
	}()
}

func (st *state) findMarker(id string) (places.Marker, bool) {
	if id == "" || st.search.Status != StatusReady {
		return places.Marker{}, false
	}
	for _, m := range st.search.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return places.Marker{}, false
}

func (st *state) dropWaiter(w chan struct{}) {
	for i, c := range st.waiters {
		if c == w {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			return
		}
	}
}

func (st *state) bump() {
	st.version++
	for _, w := range st.waiters {
		close(w)
	}
	st.waiters = nil
}
