// Package web serves the BOL generator over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/config"
	"github.com/a3tai/mcp-bol-filler/internal/logging"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// formOverhead leaves room for multipart boundaries and small form values.
const formOverhead = 1 << 20

// Server is the HTTP server for the BOL generator.
type Server struct {
	config  *config.Config
	service *bol.Service
	sources *sourceStore
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, service *bol.Service) *Server {
	s := &Server{
		config:  cfg,
		service: service,
		sources: newSourceStore(cfg.SourceTTL),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/generate", s.handleGenerate)

		r.Post("/sources", s.handleCreateSource)
		r.Get("/sources/{id}", s.handleGetSource)
		r.Delete("/sources/{id}", s.handleDeleteSource)
		r.Put("/sources/{id}/selection", s.handleUpdateSelection)
		r.Get("/sources/{id}/export", s.handleExport)
	})
}

// Start listens on addr until Shutdown. It returns http.ErrServerClosed
// after a shutdown, also when Shutdown ran first.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	logging.FromContext(context.Background()).Info("starting HTTP server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
