// Package server provides the local HTTP control surface for edgelive.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ayusman/edgelive/internal/app"
	"github.com/ayusman/edgelive/internal/server/api"
	"github.com/ayusman/edgelive/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
	Logger    zerolog.Logger
	// MaxUploadBytes bounds uploaded stills. Zero uses the API default.
	MaxUploadBytes int64
	// StreamInterval is how often the MJPEG stream polls for a new frame.
	StreamInterval time.Duration
}

// Server represents the HTTP server for the edgelive application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()

	log := config.Logger.With().Str("component", "http").Logger()
	s.handler = hlog.NewHandler(log)(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(s.mux))

	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Pipeline control, results and live views
	if s.config.App != nil {
		control := api.NewControlHandler(s.config.App, s.config.Logger, s.config.MaxUploadBytes)
		for _, path := range []string{
			"/api/state", "/api/upload", "/api/params", "/api/algorithm",
			"/api/mode", "/api/reset", "/api/histogram",
		} {
			s.mux.Handle(path, control)
		}
		s.mux.Handle("/api/result/", control)

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, s.config.StreamInterval))
		s.mux.Handle("/api/events", NewEventsHandler(s.config.App, s.config.Logger))
	}

	// Register request log API handler if Store is configured
	if s.config.Store != nil {
		requests := api.NewRequestsHandler(s.config.Store)
		s.mux.Handle("/api/requests", requests)
		s.mux.Handle("/api/requests/", requests)
		s.mux.Handle("/api/sessions", requests)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.App != nil {
		response["state"] = s.config.App.State()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// NewHTTPServer wraps s in an http.Server bound to addr, for callers that
// need graceful shutdown.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return s.NewHTTPServer(addr).ListenAndServe()
}
