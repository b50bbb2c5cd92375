// Package api serves the workspaces of a hostdeck process over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	workspaces *workspace.Set
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
	keepAlive  time.Duration
}

// New creates a new API server instance
func New(config Config, workspaces *workspace.Set, hub *events.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:     config,
		workspaces: workspaces,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
		keepAlive:  15 * time.Second,
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	read := s.requireScopes(auth.ReadScopes()...)
	write := s.requireScopes(auth.WriteScopes()...)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(read).Get("/openapi.json", s.handleOpenAPI)
		r.With(read).Get("/events", s.handleEvents)
		r.With(read).Get("/workspaces", s.handleListWorkspaces)

		r.Route("/workspaces/{ws}", func(r chi.Router) {
			r.Use(s.workspaceCtx)

			r.With(read).Get("/tabs", s.handleTabs)
			r.With(write).Post("/tabs/{id}/focus", s.handleFocus)
			r.With(write).Delete("/tabs/{id}", s.handleCloseTab)
			r.With(write).Post("/open", s.handleOpenRef)

			r.With(write).Post("/documents", s.handleNewDocument)
			r.With(read).Get("/documents/{id}", s.handleGetDocument)
			r.With(write).Put("/documents/{id}", s.handleEditDocument)
			r.With(write).Post("/documents/{id}/save", s.handleSaveDocument)
			r.With(write).Post("/documents/{id}/execute", s.handleExecuteDocument)
			r.With(write).Post("/documents/{id}/revert", s.handleRevertDocument)

			r.With(read).Get("/views/{id}/entries", s.handleViewEntries)
			r.With(write).Post("/views/{id}/navigate", s.handleNavigate)
			r.With(write).Post("/views/{id}/up", s.handleUp)
			r.With(write).Post("/views/{id}/mutations", s.handleMutate)
			r.With(write).Post("/views/{id}/toggle", s.handleToggle)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the bearer token to a principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		p, ok := auth.Authenticate(token, s.config.APIKey, s.config.Tokens)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if !auth.HasAnyScope(p, scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type controllerKey struct{}

// workspaceCtx resolves {ws} to its controller.
func (s *Server) workspaceCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "ws")
		c, ok := s.workspaces.Get(name)
		if !ok {
			s.writeError(w, http.StatusNotFound, "workspace not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), controllerKey{}, c)))
	})
}

func controllerFrom(r *http.Request) *workspace.Controller {
	return r.Context().Value(controllerKey{}).(*workspace.Controller)
}
