// Package http exposes reconciliation runs over a small JSON API.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/auth"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/metrics"
)

// RouterOptions wires the ambient endpoints around the run API.
type RouterOptions struct {
	Auth    *auth.Middleware
	Metrics *metrics.Metrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         logrus.FieldLogger
}

// NewRouter creates the chi router for the service.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	if opts.Auth != nil {
		r.Use(opts.Auth.Wrap)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Get("/", h.ListRuns)
		r.Post("/", h.SubmitRun)
		r.Get("/{id}", h.GetRun)
	})
	return r
}

func requestLogger(logger logrus.FieldLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(resp, r)
			m.IncHTTP(r.Method, resp.status)
			logger.WithFields(logrus.Fields{
				"event":      "http_request",
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     resp.status,
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
