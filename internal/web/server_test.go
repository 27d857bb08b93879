package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
	"libraryfinder/internal/view"
	"libraryfinder/internal/weather"
)

type stubPlaces struct {
	calls atomic.Int32
	err   error
}

func (s *stubPlaces) NearbyPlaces(ctx context.Context, lat, lng float64) ([]places.Marker, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []places.Marker{
		{ID: "A", Location: geo.Coordinate{Lat: lat + 0.01, Lng: lng}, Name: "Kennedy Library", Website: "https://mpl.lib.in.us"},
		{ID: "B", Location: geo.Coordinate{Lat: lat - 0.01, Lng: lng}, Name: "Maring-Hunt Library"},
	}, nil
}

type stubWeather struct {
	calls atomic.Int32
}

func (s *stubWeather) Current(ctx context.Context, marker places.Marker) (weather.Reading, error) {
	s.calls.Add(1)
	if marker.Location.Lat < 0 {
		return weather.Reading{Temp: -4, Text: "Snow", WindSpeed: 30}, nil
	}
	return weather.Reading{Temp: 72, Text: "Clear", WindSpeed: 5}, nil
}

type testEnv struct {
	places  *stubPlaces
	weather *stubWeather
	server  *httptest.Server
}

func newTestEnv(t *testing.T, opts Options, mw MiddlewareOptions) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{places: &stubPlaces{}, weather: &stubWeather{}}
	queries := view.NewQueries(env.places, env.weather, view.QueryOptions{
		PlacesStaleTime: 5 * time.Minute,
		Retry:           query.NoRetry(),
		Logger:          logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	sessions := NewSessions(ctx, queries, time.Minute, view.Options{Logger: logger})
	opts.Logger = logger
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 200 * time.Millisecond
	}
	srv, err := NewServer(queries, sessions, opts)
	require.NoError(t, err)
	mw.Logger = logger
	env.server = httptest.NewServer(Wrap(srv.Routes(), mw))
	t.Cleanup(func() {
		env.server.Close()
		sessions.CloseAll()
		cancel()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) session(t *testing.T, method, path string, body any) sessionResponse {
	t.Helper()
	resp, data := e.do(t, method, path, body)
	require.Less(t, resp.StatusCode, 300, string(data))
	var out sessionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func (e *testEnv) waitFor(t *testing.T, id string, cond func(view.Snapshot) bool) view.Snapshot {
	t.Helper()
	var last view.Snapshot
	require.Eventually(t, func() bool {
		last = e.session(t, http.MethodGet, "/api/sessions/"+id, nil).Snapshot
		return cond(last)
	}, 2*time.Second, 10*time.Millisecond)
	return last
}

func TestIndexWithoutKeyShowsOnlyLoading(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})

	resp, body := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(body)
	assert.Contains(t, page, `<meta charset="utf-8">`)
	assert.Contains(t, page, "<title>Library Finder</title>")
	assert.Contains(t, page, "Map Loading ...")
	assert.NotContains(t, page, "maps.googleapis.com")
	assert.NotContains(t, page, `id="map"`)
}

func TestIndexWithKeyLoadsWidget(t *testing.T) {
	env := newTestEnv(t, Options{
		MapsAPIKey:   "test-key",
		CanonicalURL: "https://libraries.example.com",
	}, MiddlewareOptions{})

	resp, body := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(body)
	assert.Contains(t, page, `<link rel="canonical" href="https://libraries.example.com">`)
	assert.Contains(t, page, "maps.googleapis.com/maps/api/js?key=test-key")
	assert.Contains(t, page, `"zoom":12`)
	assert.Contains(t, page, `"lat":40.19`)
	assert.NotContains(t, page, "Map Loading ...")

	resp, script := env.do(t, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(script), "snap.clicked_pos")
	assert.Contains(t, string(script), "/static/library.svg")

	resp, _ = env.do(t, http.MethodGet, "/static/library.svg", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "image/svg+xml")
	resp, _ = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionClickSelectFlow(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})

	created := env.session(t, http.MethodPost, "/api/sessions", nil)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, view.StatusIdle, created.Snapshot.Search.Status)
	assert.Nil(t, created.Snapshot.ClickedPos)
	id := created.ID

	clicked := env.session(t, http.MethodPost, "/api/sessions/"+id+"/click", geo.Coordinate{Lat: 40.20, Lng: -85.41})
	require.NotNil(t, clicked.Snapshot.ClickedPos)
	assert.Equal(t, geo.Coordinate{Lat: 40.20, Lng: -85.41}, *clicked.Snapshot.ClickedPos)
	snap := env.waitFor(t, id, func(s view.Snapshot) bool { return s.Search.Status == view.StatusReady })
	require.Len(t, snap.Search.Markers, 2)
	assert.EqualValues(t, 1, env.places.calls.Load())

	env.session(t, http.MethodPost, "/api/sessions/"+id+"/select", selectRequest{ID: "A"})
	snap = env.waitFor(t, id, func(s view.Snapshot) bool { return s.Weather.Status == view.StatusReady })
	require.NotNil(t, snap.Popup)
	assert.Equal(t, "Kennedy Library", snap.Popup.Title)
	assert.Equal(t, []string{"Clear", "Temp: 72 °F", "Wind: 5 mph"}, snap.Popup.Lines)

	closed := env.session(t, http.MethodPost, "/api/sessions/"+id+"/close", nil)
	assert.Nil(t, closed.Snapshot.Popup)
	assert.Nil(t, closed.Snapshot.SelectedMarker)

	resp, _ := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLongPoll(t *testing.T) {
	env := newTestEnv(t, Options{PollTimeout: 2 * time.Second}, MiddlewareOptions{})
	created := env.session(t, http.MethodPost, "/api/sessions", nil)
	id := created.ID
	since := created.Snapshot.Version

	done := make(chan sessionResponse, 1)
	go func() {
		resp, err := http.Get(env.server.URL + "/api/sessions/" + id + "?since=" + jsonNumber(since))
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var out sessionResponse
		if json.NewDecoder(resp.Body).Decode(&out) == nil {
			done <- out
		}
	}()

	time.Sleep(20 * time.Millisecond)
	env.session(t, http.MethodPost, "/api/sessions/"+id+"/click", geo.Coordinate{Lat: 40.20, Lng: -85.41})

	select {
	case out := <-done:
		assert.Greater(t, out.Snapshot.Version, since)
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not return after a click")
	}

	resp, _ := env.do(t, http.MethodGet, "/api/sessions/"+id+"?since=soon", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLocate(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})
	id := env.session(t, http.MethodPost, "/api/sessions", nil).ID

	denied := env.session(t, http.MethodPost, "/api/sessions/"+id+"/locate", map[string]int{"code": 1})
	assert.Equal(t, "Location permission denied", denied.Message)
	assert.Nil(t, denied.Snapshot.ClickedPos)

	unsupported := env.session(t, http.MethodPost, "/api/sessions/"+id+"/locate", map[string]int{"code": 4})
	assert.Equal(t, "Geolocation is not supported by this browser", unsupported.Message)

	here := geo.Coordinate{Lat: 40.25, Lng: -85.30}
	moved := env.session(t, http.MethodPost, "/api/sessions/"+id+"/locate", here)
	assert.Empty(t, moved.Message)
	assert.Equal(t, here, moved.Snapshot.Center)
	assert.Equal(t, 12, moved.Snapshot.Zoom)
	require.NotNil(t, moved.Snapshot.ClickedPos)
	assert.Equal(t, here, *moved.Snapshot.ClickedPos)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})
	id := env.session(t, http.MethodPost, "/api/sessions", nil).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound},
		{"unknown marker", http.MethodPost, "/api/sessions/" + id + "/select", selectRequest{ID: "Z"}, http.StatusNotFound},
		{"invalid coordinate", http.MethodPost, "/api/sessions/" + id + "/click", geo.Coordinate{Lat: 91}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/sessions/" + id + "/click", "not an object", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/sessions/" + id + "/click", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPlacesAndWeatherLookups(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})

	resp, body := env.do(t, http.MethodGet, "/api/places?lat=40.2&lng=-85.41", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var found placesResponse
	require.NoError(t, json.Unmarshal(body, &found))
	assert.Len(t, found.Markers, 2)

	env.do(t, http.MethodGet, "/api/places?lat=40.2&lng=-85.41", nil)
	assert.EqualValues(t, 1, env.places.calls.Load())

	resp, body = env.do(t, http.MethodGet, "/api/weather?id=A&lat=40.21&lng=-85.41", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var reading weatherResponse
	require.NoError(t, json.Unmarshal(body, &reading))
	assert.Equal(t, "A", reading.MarkerID)
	assert.Equal(t, []string{"Clear", "Temp: 72 °F", "Wind: 5 mph"}, reading.Lines)

	resp, _ = env.do(t, http.MethodGet, "/api/places?lat=abc&lng=1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/weather?lat=1&lng=1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeatherLookupDoesNotFillSessionCache(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})

	resp, body := env.do(t, http.MethodGet, "/api/weather?id=A&lat=-60&lng=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var elsewhere weatherResponse
	require.NoError(t, json.Unmarshal(body, &elsewhere))
	assert.Equal(t, "Snow", elsewhere.Reading.Text)

	id := env.session(t, http.MethodPost, "/api/sessions", nil).ID
	env.session(t, http.MethodPost, "/api/sessions/"+id+"/click", geo.Coordinate{Lat: 40.20, Lng: -85.41})
	env.waitFor(t, id, func(s view.Snapshot) bool { return s.Search.Status == view.StatusReady })
	env.session(t, http.MethodPost, "/api/sessions/"+id+"/select", selectRequest{ID: "A"})
	snap := env.waitFor(t, id, func(s view.Snapshot) bool { return s.Weather.Status == view.StatusReady })

	assert.Equal(t, []string{"Clear", "Temp: 72 °F", "Wind: 5 mph"}, snap.Popup.Lines)
	assert.EqualValues(t, 2, env.weather.calls.Load())

	// Same id at another position is a separate lookup too.
	env.do(t, http.MethodGet, "/api/weather?id=A&lat=-60&lng=0", nil)
	env.do(t, http.MethodGet, "/api/weather?id=A&lat=-61&lng=0", nil)
	assert.EqualValues(t, 3, env.weather.calls.Load())
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})
	env.places.err = errors.New("overpass down")

	resp, body := env.do(t, http.MethodGet, "/api/places?lat=40.2&lng=-85.41", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotContains(t, string(body), "overpass down")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{})
	env.do(t, http.MethodGet, "/api/places?lat=40.2&lng=-85.41", nil)

	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, body = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "libraryfinder_query_requests_total")
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{RateLimitPerSecond: 0.001, RateLimitBurst: 1})

	resp, _ := env.do(t, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t, Options{}, MiddlewareOptions{CORSOrigins: []string{"https://app.example.com"}})

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = env.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRecoverPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), MiddlewareOptions{Logger: logger})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/places", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queries := view.NewQueries(&stubPlaces{}, &stubWeather{}, view.QueryOptions{Logger: logger})
	sessions := NewSessions(context.Background(), queries, 40*time.Millisecond, view.Options{Logger: logger})

	s := sessions.Create()
	got, ok := sessions.Get(s.ID())
	require.True(t, ok)
	require.Same(t, s, got)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session was not closed")
	}
	_, ok = sessions.Get(s.ID())
	assert.False(t, ok)
	assert.Zero(t, sessions.Len())
}

func jsonNumber(v uint64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
