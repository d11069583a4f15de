// Package api exposes solve results and live telemetry over a read-only
// HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/miser/pkg/results"
	"github.com/odvcencio/miser/pkg/telemetry"
)

// Server serves results and telemetry. It never mutates the store.
type Server struct {
	store      *results.Store
	hub        *telemetry.Hub
	httpServer *http.Server
}

// NewServer builds the API server on bind.
func NewServer(bind string, store *results.Store, hub *telemetry.Hub) *Server {
	s := &Server{store: store, hub: hub}

	s.httpServer = &http.Server{
		Addr:         bind,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long for event streaming
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/results", s.handleListResults)
		r.Get("/results/{id}", s.handleGetResult)
		r.Get("/summary", s.handleSummary)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
