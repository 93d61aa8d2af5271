// Package api provides the HTTP REST surface over the workflow engine,
// agent hub and audit log.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/engine"
	"github.com/specforge/specforge/internal/hub"
	"github.com/specforge/specforge/internal/logging"
	"github.com/specforge/specforge/internal/poller"
)

// Server exposes the REST endpoints.
type Server struct {
	router  chi.Router
	engine  *engine.Engine
	hub     *hub.Hub
	poller  *poller.Poller
	audit   core.AuditLog
	logger  *logging.Logger
	timeout time.Duration
	origins []string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.timeout = d }
}

// WithCORSOrigins restricts allowed CORS origins. Defaults to all.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a new API server.
func NewServer(eng *engine.Engine, h *hub.Hub, p *poller.Poller, audit core.AuditLog, opts ...ServerOption) *Server {
	s := &Server{
		engine:  eng,
		hub:     h,
		poller:  p,
		audit:   audit,
		logger:  logging.NewNop(),
		timeout: 60 * time.Second,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Post("/", s.handleCreateWorkflow)

			r.Route("/{workflowID}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkflow)
				r.Get("/history", s.handleWorkflowHistory)
				r.Post("/advance", s.handleAdvanceWorkflow)
			})
		})

		r.Post("/hub/ask", s.handleAsk)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/close", s.handleCloseSession)
		})

		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", s.handleListEscalations)
			r.Route("/{escalationID}", func(r chi.Router) {
				r.Get("/", s.handleGetEscalation)
				r.Post("/resolve", s.handleResolveEscalation)
			})
		})

		r.Route("/audit/{featureID}", func(r chi.Router) {
			r.Get("/", s.handleListAudit)
			r.Get("/chain/{recordID}", s.handleAuditChain)
		})

		r.Post("/poll", s.handlePoll)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeJSON parses a request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
