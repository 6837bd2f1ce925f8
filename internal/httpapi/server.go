// Package httpapi exposes the framework's HTTP management surface: a
// chi.Mux wrapped by a huma.API, serving read/reload operations over the
// Engine, PluginManager, AdapterManager, and hot-reload Watchers.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/loquat-fw/loquat/internal/adapter"
	"github.com/loquat-fw/loquat/internal/config"
	"github.com/loquat-fw/loquat/internal/engine"
	"github.com/loquat-fw/loquat/internal/health"
	"github.com/loquat-fw/loquat/internal/hotreload"
	"github.com/loquat-fw/loquat/internal/plugin"
)

// Deps bundles the collaborators handlers read from and act on.
type Deps struct {
	Engine          *engine.Engine
	Plugins         *plugin.Manager
	Adapters        *adapter.Manager
	PluginWatcher   *hotreload.Watcher
	AdapterWatcher  *hotreload.Watcher
	HealthCollector *health.Collector
	Config          *config.Config
	Version         string
}

// Server wraps a chi.Mux and huma.API with the framework's operations
// registered.
type Server struct {
	cfg        config.WebConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer constructs a Server bound to cfg and registers every
// operation against deps.
func NewServer(cfg config.WebConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(requestID)
	router.Use(requestLogging(logger))
	router.Use(recovery(logger))
	if cfg.EnableCORS {
		router.Use(cors())
	}

	humaConfig := huma.DefaultConfig("loquat API", deps.Version)
	humaConfig.Info.Description = "Loquat pipeline management API"
	api := humachi.New(router, humaConfig)

	s := &Server{cfg: cfg, router: router, api: api, logger: logger.With("component", "HTTPServer")}
	registerRoutes(api, deps)
	return s
}

// Router exposes the chi.Mux for tests or additional route registration.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins serving on cfg.Address(), blocking until the listener
// exits.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("starting HTTP server", "address", s.cfg.Address())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
