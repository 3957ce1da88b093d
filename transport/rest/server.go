// Package rest is the operations HTTP surface: liveness, coordinator stats and Prometheus metrics.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Option func(*Server)

// WithResults - adds stored result totals to /stats.
func WithResults(results resultReporter) Option {
	return func(server *Server) {
		server.stats.results = results
	}
}

type Server struct {
	logger   *slog.Logger
	ping     PingHandler
	stats    *statsHandler
	gatherer prometheus.Gatherer
}

func New(
	logger *slog.Logger,
	load loadReporter,
	rooms roomReporter,
	workers workerReporter,
	gatherer prometheus.Gatherer,
	opts ...Option,
) *Server {
	logger = logger.With("component", "rest_server")

	server := &Server{
		logger: logger,
		ping:   NewPingHandler(),
		stats: &statsHandler{
			logger:  logger,
			load:    load,
			rooms:   rooms,
			workers: workers,
		},
		gatherer: gatherer,
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

// Router - all ops routes.
func (that *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/ping", that.ping.PingHandler)
	router.Method(http.MethodGet, "/stats", that.stats)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(that.gatherer, promhttp.HandlerOpts{}))

	return router
}

// Start - serves the ops routes on port until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start", "port", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	log.Info("HTTP server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
