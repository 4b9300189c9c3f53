// Package web provides the HTTP API for uploading graph data into workspaces.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/multinet/internal/auth"
	"github.com/JonMunkholm/multinet/internal/config"
	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/web/middleware"
)

// Server is the HTTP server for the upload API.
type Server struct {
	cfg     *config.Config
	service *core.Service
	authz   auth.Authorizer
	router  *chi.Mux
	server  *http.Server

	limiters []*rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, service *core.Service, authz auth.Authorizer) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		authz:   authz,
		router:  chi.NewRouter(),
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
	s.router.Use(chimw.Compress(5, "application/json", "text/csv", "application/yaml"))
	s.router.Use(metricsMiddleware)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := s.newRateLimiter(s.cfg.Rate.RequestsPerSecond, s.cfg.Rate.Burst)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	authn := middleware.APIKeyAuth(s.authz, s.respondError)
	atLeast := func(need auth.Level) func(http.Handler) http.Handler {
		return middleware.RequireLevel(s.authz, need, s.respondError)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
			r.Get("/formats", s.handleFormats)
			r.Get("/openapi.yaml", s.handleOpenAPI)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)

			// Filtered per workspace by the handler
			r.With(chimw.Timeout(s.cfg.Server.RequestTimeout)).
				Get("/workspaces", s.handleListWorkspaces)

			// Reads
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
				r.Use(atLeast(auth.LevelReader))
				r.Get("/workspaces/{workspace}/tables", s.handleListTables)
				r.Get("/workspaces/{workspace}/tables/{table}", s.handleTableRows)
				r.Get("/workspaces/{workspace}/tables/{table}/download", s.handleDownloadTable)
			})

			// Workspace removal
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
				r.Use(atLeast(auth.LevelOwner))
				r.Delete("/workspaces/{workspace}", s.handleDeleteWorkspace)
			})

			// Writes. Uploads run under the service's own upload timeout.
			r.Group(func(r chi.Router) {
				r.Use(atLeast(auth.LevelWriter))
				r.Group(func(r chi.Router) {
					r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
					r.Post("/workspaces/{workspace}", s.handleCreateWorkspace)
					r.Delete("/workspaces/{workspace}/tables/{table}", s.handleDeleteTable)
				})

				r.Group(func(r chi.Router) {
					if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
						perSecond := float64(s.cfg.Rate.UploadLimit) / 60
						uploads := s.newRateLimiter(perSecond, s.cfg.Rate.UploadLimit)
						r.Use(uploads.middleware)
					}
					for _, info := range s.service.Formats() {
						r.Post("/"+info.Key+"/{workspace}/{table}", s.handleUpload(info.Key))
					}
				})
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) newRateLimiter(perSecond float64, burst int) *rateLimiter {
	l := newRateLimiter(perSecond, burst, 10*time.Minute)
	s.limiters = append(s.limiters, l)
	return l
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")

			// JSON and CSV only; nothing here should ever load resources.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}
