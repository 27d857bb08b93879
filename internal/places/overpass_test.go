package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"libraryfinder/internal/geo"
	"libraryfinder/internal/query"
)

func TestOverpassClient_RequestsAndParses(t *testing.T) {
	var requestCount int32
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("data")
		atomic.AddInt32(&requestCount, 1)
		resp := overpassResponse{
			Elements: []overpassElement{
				{Type: "node", ID: 1, Lat: 40.19, Lon: -85.39, Tags: map[string]string{
					"amenity": "library", "name": "Kennedy Library", "phone": "+1 765-747-8200", "website": "https://mpl.lib.in.us",
				}},
				{Type: "way", ID: 2, Center: &overpassLatLon{Lat: 40.21, Lon: -85.41}, Tags: map[string]string{
					"amenity": "library", "operator": "Ball State University", "contact:website": "https://bsu.edu/library",
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := &OverpassClient{BaseURL: server.URL, HTTPClient: server.Client(), RadiusMeters: 2500}

	markers, err := client.NearbyPlaces(context.Background(), 40.20, -85.41)
	if err != nil {
		t.Fatalf("NearbyPlaces error: %v", err)
	}
	if !strings.Contains(gotQuery, `node(around:2500,40.200000,-85.410000)["amenity"="library"]`) {
		t.Fatalf("unexpected overpass query: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "out center;") {
		t.Fatalf("expected way centers to be requested: %s", gotQuery)
	}
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}

	want := Marker{
		ID:          "node/1",
		Location:    geo.Coordinate{Lat: 40.19, Lng: -85.39},
		Name:        "Kennedy Library",
		PhoneNumber: "+1 765-747-8200",
		Website:     "https://mpl.lib.in.us",
	}
	if markers[0] != want {
		t.Fatalf("unexpected first marker: %+v", markers[0])
	}
	if markers[1].ID != "way/2" || markers[1].Location != (geo.Coordinate{Lat: 40.21, Lng: -85.41}) {
		t.Fatalf("unexpected way marker: %+v", markers[1])
	}
	if markers[1].Name != "Ball State University" || markers[1].Website != "https://bsu.edu/library" {
		t.Fatalf("expected tag fallbacks, got %+v", markers[1])
	}
	if got := atomic.LoadInt32(&requestCount); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestOverpassClient_FailsOverToMirror(t *testing.T) {
	var firstHits, secondHits int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&firstHits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`overpass down`))
	}))
	defer first.Close()

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondHits, 1)
		resp := overpassResponse{
			Elements: []overpassElement{{Type: "node", ID: 9, Lat: 1, Lon: 2, Tags: map[string]string{"amenity": "library"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer second.Close()

	client := &OverpassClient{
		MirrorURLs: []string{first.URL, second.URL},
		HTTPClient: first.Client(),
	}

	markers, err := client.NearbyPlaces(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("failover failed: %v", err)
	}
	if len(markers) != 1 || markers[0].Name != "Library" {
		t.Fatalf("unexpected markers: %+v", markers)
	}
	if atomic.LoadInt32(&firstHits) != 1 || atomic.LoadInt32(&secondHits) != 1 {
		t.Fatalf("expected 1 hit per mirror, got first=%d second=%d", firstHits, secondHits)
	}
}

func TestOverpassClient_DoesNotFailOverOnClientError(t *testing.T) {
	var secondHits int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondHits, 1)
	}))
	defer second.Close()

	client := &OverpassClient{MirrorURLs: []string{first.URL, second.URL}, HTTPClient: first.Client()}
	_, err := client.NearbyPlaces(context.Background(), 0, 0)
	if err == nil || !query.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if atomic.LoadInt32(&secondHits) != 0 {
		t.Fatalf("expected no failover on 400")
	}
}

func TestOverpassClient_RejectsInvalidCoordinate(t *testing.T) {
	client := &OverpassClient{BaseURL: "http://127.0.0.1:0"}
	_, err := client.NearbyPlaces(context.Background(), 123, 0)
	if !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if !query.IsPermanent(err) {
		t.Fatalf("expected invalid coordinate to be permanent")
	}
}
