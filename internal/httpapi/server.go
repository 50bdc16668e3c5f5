// Package httpapi exposes the upload/process/progress/read session
// lifecycle over HTTP: a chi router, middleware stack, and handlers backed
// by the session store and pipeline driver.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundtrace/eras-api/internal/logging"
	"github.com/soundtrace/eras-api/internal/pipeline"
	"github.com/soundtrace/eras-api/internal/session"
)

// Config holds the HTTP-layer-specific settings the rest of the service
// has already loaded from the environment.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ProgressCeiling time.Duration
}

// Server wires the session store and pipeline driver to an HTTP listener.
type Server struct {
	router chi.Router
	server *http.Server

	store  *session.Store
	driver *pipeline.Driver
	cfg    Config
}

// NewServer builds a Server with its routes and middleware installed.
func NewServer(cfg Config, store *session.Store, driver *pipeline.Driver) *Server {
	router := chi.NewRouter()

	s := &Server{router: router, store: store, driver: driver, cfg: cfg}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the progress stream holds the connection open far longer than a fixed write timeout allows
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/upload", s.handleUpload)
	s.router.Post("/process/{session_id}", s.handleProcess)
	s.router.Get("/progress/{session_id}", s.handleProgress)
	s.router.Get("/session/{session_id}/summary", s.handleSummary)
	s.router.Get("/session/{session_id}/eras", s.handleEraList)
	s.router.Get("/session/{session_id}/eras/{era_id}", s.handleEraDetail)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	logging.Logger().Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until an interrupt/TERM signal arrives,
// then shuts down gracefully with a 10s timeout.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logging.Logger().Info().Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logging.Logger().Info().Msg("server stopped")
	return nil
}
