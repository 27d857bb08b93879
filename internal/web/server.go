package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"libraryfinder/internal/locate"
	"libraryfinder/internal/settings"
	"libraryfinder/internal/view"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var StaticFS embed.FS

const defaultPollTimeout = 25 * time.Second

type Options struct {
	MapsAPIKey   string
	CanonicalURL string
	Map          settings.Map
	// PollTimeout bounds one long-poll request on a session.
	PollTimeout   time.Duration
	LocateTimeout time.Duration
	Logger        *slog.Logger
}

type Server struct {
	queries   *view.Queries
	sessions  *Sessions
	locate    *locate.Control
	templates map[string]*template.Template
	opts      Options
	logger    *slog.Logger
}

type PageData struct {
	Title        string
	CanonicalURL string
	MapsAPIKey   string
	Map          settings.Map
}

func NewServer(queries *view.Queries, sessions *Sessions, opts Options) (*Server, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Map.Zoom == 0 {
		opts.Map = settings.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	index, err := template.New("base").ParseFS(
		templatesFS,
		"templates/base.html",
		"templates/index.html",
	)
	if err != nil {
		return nil, err
	}
	return &Server{
		queries:  queries,
		sessions: sessions,
		locate:   &locate.Control{Timeout: opts.LocateTimeout, Logger: logger},
		templates: map[string]*template.Template{
			"index": index,
		},
		opts:   opts,
		logger: logger,
	}, nil
}

// Routes registers the page, the static assets and the JSON API on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.FileServerFS(StaticFS))
	mux.HandleFunc("GET /{$}", s.Index)

	mux.HandleFunc("POST /api/sessions", s.CreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.DeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/click", s.ClickMap)
	mux.HandleFunc("POST /api/sessions/{id}/locate", s.Locate)
	mux.HandleFunc("POST /api/sessions/{id}/select", s.SelectMarker)
	mux.HandleFunc("POST /api/sessions/{id}/close", s.ClosePopup)
	mux.HandleFunc("GET /api/places", s.Places)
	mux.HandleFunc("GET /api/weather", s.Weather)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Index renders the map page. Without a maps key it renders only the
// loading placeholder and never loads the widget.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title:        "Library Finder",
		CanonicalURL: s.opts.CanonicalURL,
		MapsAPIKey:   s.opts.MapsAPIKey,
		Map:          s.opts.Map,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates["index"].ExecuteTemplate(w, "base", data); err != nil {
		s.logger.Error("template render failed", "template", "index", "error", err)
		http.Error(w, "template render failed", http.StatusInternalServerError)
	}
}
