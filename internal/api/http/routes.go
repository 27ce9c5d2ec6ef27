package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// Only /download and /tasks/start go through the rate limiter; limiter may be nil.
func NewRouter(h *Handler, limiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(CORS)

	limited := func(next http.Handler) http.Handler { return next }
	if limiter != nil {
		limited = limiter.Middleware
	}

	r.Get("/", h.Index)
	r.With(limited).Get("/download", h.Download)

	r.Route("/tasks", func(r chi.Router) {
		r.With(limited).Post("/start", h.StartTask)
		r.Get("/{id}", h.GetTask)
		r.Get("/{id}/events", h.TaskEvents)
		r.Get("/{id}/file", h.TaskFile)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
