package view

import (
	"strconv"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/places"
	"libraryfinder/internal/weather"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

type SearchState struct {
	Status  Status          `json:"status"`
	Markers []places.Marker `json:"markers"`
}

type WeatherState struct {
	Status  Status           `json:"status"`
	Reading *weather.Reading `json:"reading,omitempty"`
}

// Popup is the info window anchored to the selected marker.
type Popup struct {
	Position geo.Coordinate `json:"position"`
	Title    string         `json:"title"`
	Website  string         `json:"website"`
	Phone    string         `json:"phone,omitempty"`
	Loading  bool           `json:"loading"`
	Lines    []string       `json:"lines"`
}

const loadingWeatherText = "Loading Weather ..."

// Snapshot is a copy of one session's state, ready to render.
type Snapshot struct {
	SessionID      string          `json:"session_id"`
	Version        uint64          `json:"version"`
	Center         geo.Coordinate  `json:"center"`
	Zoom           int             `json:"zoom"`
	ClickedPos     *geo.Coordinate `json:"clicked_pos,omitempty"`
	Search         SearchState     `json:"search"`
	SelectedMarker *places.Marker  `json:"selected_marker,omitempty"`
	Weather        WeatherState    `json:"weather"`
	Popup          *Popup          `json:"popup,omitempty"`
}

// Markers returns the result markers to draw; none unless the search is ready.
func (s Snapshot) Markers() []places.Marker {
	if s.Search.Status != StatusReady {
		return nil
	}
	return s.Search.Markers
}

func (s *state) snapshot(id string) Snapshot {
	snap := Snapshot{
		SessionID: id,
		Version:   s.version,
		Center:    s.center,
		Zoom:      s.zoom,
		Search:    SearchState{Status: s.search.Status},
		Weather:   WeatherState{Status: s.weather.Status},
	}
	if s.clicked != nil {
		pos := *s.clicked
		snap.ClickedPos = &pos
	}
	if s.search.Status == StatusReady {
		snap.Search.Markers = append([]places.Marker{}, s.search.Markers...)
	}
	if s.weather.Reading != nil {
		r := *s.weather.Reading
		snap.Weather.Reading = &r
	}
	if s.selected != nil {
		m := *s.selected
		snap.SelectedMarker = &m
		snap.Popup = popupFor(m, snap.Weather)
	}
	return snap
}

func popupFor(m places.Marker, w WeatherState) *Popup {
	p := &Popup{
		Position: m.Location,
		Title:    m.Name,
		Website:  m.Website,
		Phone:    m.PhoneNumber,
	}
	switch {
	case w.Status == StatusPending:
		p.Loading = true
		p.Lines = []string{loadingWeatherText}
	case w.Status == StatusReady && w.Reading != nil:
		p.Lines = WeatherLines(*w.Reading)
	}
	return p
}

// WeatherLines renders a reading the way the popup shows it.
func WeatherLines(r weather.Reading) []string {
	return []string{
		r.Text,
		"Temp: " + formatNumber(r.Temp) + " °F",
		"Wind: " + formatNumber(r.WindSpeed) + " mph",
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
