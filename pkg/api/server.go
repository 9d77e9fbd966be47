// Package api serves run history from the ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"

	"github.com/cloudcycle/cloudcycle/pkg/stores"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	healthTimeout     = 2 * time.Second
)

// Server is the status API.
type Server struct {
	router  *chi.Mux
	ledger  stores.Reader
	metrics *telemetry.Metrics
	health  healthcheck.Handler
	logger  *telemetry.Logger
	addr    string
}

// NewServer wires the routes. metrics may be nil.
func NewServer(addr string, ledger stores.Reader, metrics *telemetry.Metrics, logger *telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	s := &Server{
		router:  chi.NewRouter(),
		ledger:  ledger,
		metrics: metrics,
		health:  healthcheck.NewHandler(),
		logger:  logger.NewComponentLogger("api"),
		addr:    addr,
	}

	s.health.AddReadinessCheck("ledger", healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		return s.ledger.HealthCheck(ctx)
	}, healthTimeout))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.health.LiveEndpoint)
	s.router.Get("/readyz", s.health.ReadyEndpoint)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/events", s.handleListEvents)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", ww.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("request_id", middleware.GetReqID(r.Context())).
			Debug("request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
