// Package api exposes the HTTP surface: REST endpoints for creating and
// inspecting generations, and the SSE status stream.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiMiddleware "github.com/tailorworks/tailor-api/internal/api/middleware"
	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/service"
	"github.com/tailorworks/tailor-api/internal/store"
)

// RouterDeps holds everything the router needs to build its handlers.
type RouterDeps struct {
	GenerationService service.GenerationService
	Snapshots         store.SnapshotStore
	StreamConfig      config.StreamConfig
}

// NewRouter creates and configures the application router with all
// routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	generationHandler := NewGenerationHandler(deps.GenerationService)
	streamHandler := NewStreamHandler(deps.Snapshots, deps.StreamConfig)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", generationHandler.CreateGeneration)
		r.Get("/generations/{id}", generationHandler.GetGeneration)
		r.Get("/generations/{id}/outputs", generationHandler.ListOutputs)
		r.Get("/generations/{id}/stream", streamHandler.StreamGeneration)
	})

	// Health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
