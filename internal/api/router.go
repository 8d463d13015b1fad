// Package api serves the npmdash backend: maintainer stats, GitHub
// enrichment and dashboard history over HTTP.
package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/history"
)

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Service *enrich.Service

	// History may be unconfigured; the history endpoints then report
	// redisAvailable=false.
	History *history.Store

	Logger *log.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	hist := cfg.History
	if hist == nil {
		hist = history.New(nil, history.Options{Logger: logger})
	}
	h := &Handler{svc: cfg.Service, history: hist, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/rate-limit", h.RateLimit)
		r.Get("/stats", h.Stats)
		r.Get("/github-stats", h.GitHubStats)
		r.Get("/user-stats-history", h.GetHistory)
		r.Post("/user-stats-history", h.SaveHistory)
	})
	return r
}
