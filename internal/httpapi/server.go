// Package httpapi serves batch jobs, run history and cleanup reports over
// HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/catalog-janitor/internal/engine"
	"github.com/Veraticus/catalog-janitor/internal/metrics"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the engine over HTTP. Batch requests run one at a time
// through the engine; other processes are kept out by the store lock.
type Server struct {
	engine   *engine.Engine
	store    service.Storage
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
}

// New creates a server. met and gatherer may be nil to disable /metrics.
func New(eng *engine.Engine, store service.Storage, met *metrics.Collector, gatherer prometheus.Gatherer) *Server {
	return &Server{engine: eng, store: store, metrics: met, gatherer: gatherer}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		handler := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		// Catalog gauges refresh on scrape.
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			if s.metrics != nil {
				if err := s.metrics.Refresh(r.Context()); err != nil {
					slog.Warn("Failed to refresh catalog metrics", "error", err)
				}
			}
			handler.ServeHTTP(w, r)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/images/match", s.handleMatchImages)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Post("/runs/{id}/undo", s.handleUndo)

		r.Get("/reports/{kind}", s.handleReport)
	})
	return r
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	slog.Info("Serving catalog API", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
