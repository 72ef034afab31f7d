// Package server provides the HTTP server: health, live stream, detection
// feed and the recorded-runs API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/palmtrace/internal/server/api"
	"github.com/ayusman/palmtrace/internal/store"
)

// Toggle switches detection on and off.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Hub       *Hub
	Toggle    Toggle
	Method    string
}

// Server represents the HTTP server for the application.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)

	// Register run API handler if Store is configured
	if s.config.Store != nil {
		s.router.Mount("/api/runs", api.NewRunHandler(s.config.Store).Routes())
	}

	// Register stream and detection feed if a Hub is configured
	if s.config.Hub != nil {
		s.router.Get("/api/stream", NewStreamHandler(s.config.Hub).ServeHTTP)
		s.router.Get("/api/detections", s.config.Hub.ServeHTTP)
	}

	if s.config.Toggle != nil {
		s.router.Get("/api/detection", s.handleDetectionState)
		s.router.Put("/api/detection", s.handleDetectionToggle)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.Handle("/*", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Method != "" {
		response["method"] = s.config.Method
	}
	if s.config.Hub != nil {
		response["clients"] = s.config.Hub.Clients()
		if snap := s.config.Hub.Latest(); snap != nil {
			response["last_seq"] = snap.Seq
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type detectionState struct {
	Enabled bool `json:"enabled"`
}

// handleDetectionState handles GET /api/detection.
func (s *Server) handleDetectionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, detectionState{Enabled: s.config.Toggle.IsEnabled()})
}

// handleDetectionToggle handles PUT /api/detection.
func (s *Server) handleDetectionToggle(w http.ResponseWriter, r *http.Request) {
	var req detectionState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.config.Toggle.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, detectionState{Enabled: s.config.Toggle.IsEnabled()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
