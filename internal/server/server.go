// Package server exposes the HTTP API. It owns routing, request
// authentication, rate limiting, and the translation between wire JSON
// and service calls; all business rules live in the service package.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/ratelimit"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/service"
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds everything the HTTP server needs.
type Config struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string

	Users       *service.UserService
	Collections *service.CollectionService
	Documents   *service.DocumentService
	Chat        *service.ChatService

	// UserLookup resolves authenticated callers; JWT validates session
	// tokens. Both are required.
	UserLookup repository.UserRepository
	JWT        *auth.JWTManager

	// Limiter is optional; nil disables rate limiting.
	Limiter ratelimit.Limiter

	// Counters backs the /statz endpoint; nil leaves it unmounted.
	Counters *observability.CounterSink

	ReadyChecks []ReadyCheck

	// Defaults applied when a chat request leaves the knob unset.
	DefaultTopK     int
	DefaultMinScore float32
}

// Server is the HTTP front end.
type Server struct {
	http     *http.Server
	router   *chi.Mux
	logger   *slog.Logger
	validate *validator.Validate

	users       *service.UserService
	collections *service.CollectionService
	documents   *service.DocumentService
	chat        *service.ChatService

	userLookup repository.UserRepository
	jwt        *auth.JWTManager
	limiter    ratelimit.Limiter
	counters   *observability.CounterSink
	ready      []ReadyCheck

	defaultTopK     int
	defaultMinScore float32
}

// New creates the HTTP server and mounts all routes.
func New(cfg Config) (*Server, error) {
	if cfg.UserLookup == nil || cfg.JWT == nil {
		return nil, fmt.Errorf("server requires a user repository and JWT manager")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:          logger,
		validate:        validator.New(),
		users:           cfg.Users,
		collections:     cfg.Collections,
		documents:       cfg.Documents,
		chat:            cfg.Chat,
		userLookup:      cfg.UserLookup,
		jwt:             cfg.JWT,
		limiter:         cfg.Limiter,
		counters:        cfg.Counters,
		ready:           cfg.ReadyChecks,
		defaultTopK:     cfg.DefaultTopK,
		defaultMinScore: cfg.DefaultMinScore,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogging(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsHandler(cfg.AllowedOrigins))

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Handle("/metrics", promhttp.Handler())
	if s.counters != nil {
		router.Get("/statz", s.handleStatz)
	}

	router.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.rateLimit)

			r.Post("/chat", s.handleChat)
			r.Get("/conversations/{sessionID}", s.handleGetConversation)
			r.Delete("/conversations/{sessionID}", s.handleClearConversation)

			r.Post("/collections", s.handleCreateCollection)
			r.Get("/collections", s.handleListCollections)
			r.Get("/collections/{collectionID}", s.handleGetCollection)
			r.Delete("/collections/{collectionID}", s.handleDeleteCollection)

			r.Post("/collections/{collectionID}/documents", s.handleUploadDocument)
			r.Get("/collections/{collectionID}/documents", s.handleListDocuments)
			r.Get("/documents/{documentID}", s.handleGetDocument)
			r.Get("/documents/{documentID}/chunks", s.handleGetDocumentChunks)
			r.Delete("/documents/{documentID}", s.handleDeleteDocument)

			r.Post("/auth/api-key", s.handleRotateAPIKey)
			r.Get("/me", s.handleMe)
			r.Get("/me/stats", s.handleStats)
		})
	})

	s.router = router
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation can be slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the mux, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, check := range s.ready {
		if err := check.Check(ctx); err != nil {
			s.logger.Warn("readiness check failed", "check", check.Name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"failed": check.Name,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.counters.Snapshot()})
}
