package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/replicator"
	"github.com/aman-app/aman/pkg/storage"
)

// Server is the HTTP front of the canonical store: the alert REST
// surface plus the replication facade.
type Server struct {
	engine   *alerts.Engine
	facade   *replicator.Facade
	store    storage.Store
	verifier auth.Verifier
	httpSrv  *http.Server
	logger   zerolog.Logger
}

// NewServer wires the API server.
func NewServer(engine *alerts.Engine, facade *replicator.Facade, store storage.Store, verifier auth.Verifier) *Server {
	return &Server{
		engine:   engine,
		facade:   facade,
		store:    store,
		verifier: verifier,
		logger:   log.WithComponent("api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", metrics.HealthHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier))

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", s.handleCreateAlert)
			r.Get("/", s.handleListAlerts)
			r.Get("/{alertID}", s.handleGetAlert)
			r.Put("/{alertID}/report", s.handleReportAlert)
			r.Put("/{alertID}/snapshot", s.handlePutSnapshot)
			r.Delete("/{alertID}", s.handleDeleteAlert)
		})

		r.Route("/{collection}", func(r chi.Router) {
			s.facade.Mount(r)
		})
	})

	return r
}

// Start begins serving on addr.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	err := s.httpSrv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
