// Package httpapi serves a small local-only diagnostics endpoint over the
// bot's internal state: playback, queue, last-played clip, ingestion
// source, and per-component health.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"clipbot/internal/httpapi/templates"
	"clipbot/internal/models"
)

// PlaybackStatus is the subset of the playback engine's state the status
// page reports.
type PlaybackStatus interface {
	State() models.PlaybackState
	QueueLen() int
	CurrentClip() (models.ClipData, bool)
	LastPlayed() (models.ClipData, bool)
}

// HealthSnapshotter is the subset of the health registry the status page
// reports.
type HealthSnapshotter interface {
	Snapshot() []models.ComponentHealth
}

// SourceReporter reports which ingestion source is currently active.
type SourceReporter interface {
	ActiveSource() string
}

// Server is the chi-based diagnostics HTTP server.
type Server struct {
	playback PlaybackStatus
	health   HealthSnapshotter
	source   SourceReporter
	srv      *http.Server
}

// NewServer builds the router and binds it to addr. Listening starts only
// when Start is called.
func NewServer(addr string, playback PlaybackStatus, health HealthSnapshotter, source SourceReporter) *Server {
	s := &Server{playback: playback, health: health, source: source}

	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET"},
	}).Handler)
	r.Use(chimiddleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start begins listening; it blocks until the listener exits and never
// returns a non-nil error for a clean shutdown.
func (s *Server) Start() error {
	log.Printf("[HTTPAPI] diagnostics server listening on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx is canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	PlaybackState string                   `json:"playback_state"`
	QueueLength   int                      `json:"queue_length"`
	CurrentClip   *clipView                `json:"current_clip,omitempty"`
	LastPlayed    *clipView                `json:"last_played,omitempty"`
	ActiveSource  string                   `json:"active_source"`
	Components    []models.ComponentHealth `json:"components"`
}

type clipView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *Server) buildStatus() statusResponse {
	resp := statusResponse{
		PlaybackState: s.playback.State().String(),
		QueueLength:   s.playback.QueueLen(),
		ActiveSource:  s.source.ActiveSource(),
		Components:    s.health.Snapshot(),
	}
	if clip, ok := s.playback.CurrentClip(); ok {
		resp.CurrentClip = &clipView{ID: clip.ID, Title: clip.Title, URL: clip.URL}
	}
	if clip, ok := s.playback.LastPlayed(); ok {
		resp.LastPlayed = &clipView{ID: clip.ID, Title: clip.Title, URL: clip.URL}
	}
	return resp
}

// handleStatus negotiates on Accept: browsers get the HTML status page,
// everything else gets JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.buildStatus()

	if isBrowserRequest(r) {
		if err := templates.RenderStatusPage(w, templates.StatusPageData{
			PlaybackState: status.PlaybackState,
			QueueLength:   status.QueueLength,
			ActiveSource:  status.ActiveSource,
			Components:    status.Components,
		}); err != nil {
			log.Printf("[HTTPAPI] failed to render status page: %v", err)
			http.Error(w, "status page unavailable", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleHealthz is a minimal liveness probe for process supervisors.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTPAPI] failed to encode response: %v", err)
	}
}

func isBrowserRequest(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
