// Package web provides the HTTP server for gem inventory uploads: the JSON
// API, the progress event stream and the progress page.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
	"github.com/JonMunkholm/gemstock/internal/web/middleware"
)

// Server is the HTTP server for the upload surface.
type Server struct {
	service *core.Service
	cfg     *config.Config
	schema  ingest.Schema
	example map[string]string
	router  *chi.Mux
	server  *http.Server

	requestLimiter *rateLimiter
	uploadLimiter  *rateLimiter
}

// NewServer creates a Server for service. opts supplies the schema used for
// template downloads.
func NewServer(service *core.Service, cfg *config.Config, opts inventory.Options) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		schema:  inventory.Schema(opts),
		example: inventory.ExampleRow(opts),
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.requestLimiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.uploadLimiter = newRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)

	if len(s.cfg.Security.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins:   s.cfg.Security.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders:   []string{"Location", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.requestLimiter != nil {
		s.router.Use(s.requestLimiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Progress page
	s.router.With(s.requestTimeout).Get("/uploads/{uploadID}", s.handleUploadPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		// The event stream stays open for the whole run.
		r.Get("/uploads/{uploadID}/progress", s.handleUploadProgress)

		r.Group(func(r chi.Router) {
			r.Use(s.requestTimeout)

			r.Get("/status", s.handleStatus)
			r.Get("/template", s.handleDownloadTemplate)

			r.With(s.limitUploads).Post("/uploads", s.handleUpload)
			r.Get("/uploads/{uploadID}", s.handleUploadState)
			r.With(s.limitUploads).Post("/uploads/{uploadID}/resubmit", s.handleResubmit)
			r.Post("/uploads/{uploadID}/cancel", s.handleCancelUpload)
			r.Delete("/uploads/{uploadID}", s.handleCloseUpload)
			r.Get("/uploads/{uploadID}/failed-rows", s.handleExportFailedRows)
		})
	})
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps event streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	if s.requestLimiter != nil {
		s.requestLimiter.stop()
	}
	if s.uploadLimiter != nil {
		s.uploadLimiter.stop()
	}
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return chimw.Timeout(s.cfg.Server.RequestTimeout)(next)
}

func (s *Server) limitUploads(next http.Handler) http.Handler {
	if s.uploadLimiter == nil {
		return next
	}
	return s.uploadLimiter.middleware(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uploads": s.service.UploadLimiterStatus(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// The progress page carries its script and styles inline.
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
