package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/locate"
	"libraryfinder/internal/places"
	"libraryfinder/internal/query"
	"libraryfinder/internal/view"
	"libraryfinder/internal/weather"
)

const maxBodyBytes = 1 << 16

var errUnknownSession = errors.New("unknown session")

type sessionResponse struct {
	ID       string        `json:"id"`
	Snapshot view.Snapshot `json:"snapshot"`
	// Message is the location control's text after a failed locate.
	Message string `json:"message,omitempty"`
}

type placesResponse struct {
	Position geo.Coordinate  `json:"position"`
	Markers  []places.Marker `json:"markers"`
}

type weatherResponse struct {
	MarkerID string          `json:"marker_id"`
	Reading  weather.Reading `json:"reading"`
	Lines    []string        `json:"lines"`
}

type selectRequest struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID(), Snapshot: snap})
}

// GetSession returns the current snapshot. With ?since=<version> it waits
// for a newer one, up to the poll timeout.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("since")
	if raw == "" {
		s.respondSnapshot(w, r, sess, "")
		return
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.PollTimeout)
	defer cancel()
	snap, err := sess.Wait(ctx, since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID(), Snapshot: snap})
}

func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Remove(r.PathValue("id")) {
		s.fail(w, r, errUnknownSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ClickMap(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var pos geo.Coordinate
	if !decodeBody(w, r, &pos) {
		return
	}
	if err := sess.ClickMap(r.Context(), pos); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSnapshot(w, r, sess, "")
}

// Locate takes the browser geolocation outcome. A failure is not an HTTP
// error: the snapshot is returned unchanged along with the control's message.
func (s *Server) Locate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var reported locate.Reported
	if !decodeBody(w, r, &reported) {
		return
	}
	message, err := s.locate.Trigger(r.Context(), reported, func(pos geo.Coordinate) error {
		return sess.MoveTo(r.Context(), pos)
	})
	var locErr *locate.Error
	if err != nil && !errors.As(err, &locErr) {
		s.fail(w, r, err)
		return
	}
	s.respondSnapshot(w, r, sess, message)
}

func (s *Server) SelectMarker(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.SelectMarker(r.Context(), req.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSnapshot(w, r, sess, "")
}

func (s *Server) ClosePopup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ClosePopup(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSnapshot(w, r, sess, "")
}

// Places is a stateless lookup through the shared cache.
func (s *Server) Places(w http.ResponseWriter, r *http.Request) {
	pos, err := coordinateParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	markers, err := s.queries.NearbyPlaces(r.Context(), &pos)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if markers == nil {
		markers = []places.Marker{}
	}
	writeJSON(w, http.StatusOK, placesResponse{Position: pos, Markers: markers})
}

func (s *Server) Weather(w http.ResponseWriter, r *http.Request) {
	pos, err := coordinateParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	marker := places.Marker{ID: strings.TrimSpace(r.URL.Query().Get("id")), Location: pos}
	if marker.ID == "" {
		s.fail(w, r, weather.ErrMissingMarker)
		return
	}
	reading, err := s.queries.WeatherAt(r.Context(), &marker)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{
		MarkerID: marker.ID,
		Reading:  reading,
		Lines:    view.WeatherLines(reading),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*view.Session, bool) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.fail(w, r, errUnknownSession)
		return nil, false
	}
	return sess, true
}

func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, sess *view.Session, message string) {
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID(), Snapshot: snap, Message: message})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	msg := err.Error()
	if status == http.StatusBadGateway {
		msg = "upstream lookup failed"
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownSession), errors.Is(err, view.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, view.ErrUnknownMarker):
		return http.StatusNotFound
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, query.ErrDisabled),
		errors.Is(err, weather.ErrMissingMarker):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func coordinateParams(r *http.Request) (geo.Coordinate, error) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		return geo.Coordinate{}, geo.ErrInvalidCoordinate
	}
	pos := geo.Coordinate{Lat: lat, Lng: lng}
	return pos, pos.Validate()
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
