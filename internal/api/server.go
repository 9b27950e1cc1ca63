package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bekaIva/instant-ai-translator/internal/auth"
	"github.com/bekaIva/instant-ai-translator/internal/bridge"
	"github.com/bekaIva/instant-ai-translator/internal/journal"
	"github.com/bekaIva/instant-ai-translator/internal/prefs"
)

// Processor runs processing requests. *bridge.Bridge satisfies it.
type Processor interface {
	ProcessSync(ctx context.Context, text, operation string) (bridge.Outcome, error)
	State() bridge.State
}

// History lists recent processing outcomes. *journal.Journal satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// MaxTextBytes bounds the text accepted by POST /v1/process.
	MaxTextBytes int64
	// ProcessTimeout bounds how long POST /v1/process waits for an outcome.
	ProcessTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	processor Processor
	prefs     prefs.Writer
	history   History
	gatherer  prometheus.Gatherer
	auth      *auth.Authenticator
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and gatherer may be nil; the matching
// endpoints then answer 404.
func New(config Config, processor Processor, store prefs.Writer, history History, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if config.MaxTextBytes <= 0 {
		config.MaxTextBytes = 256 * 1024
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = 2 * time.Minute
	}
	return &Server{
		config:    config,
		processor: processor,
		prefs:     store,
		history:   history,
		gatherer:  gatherer,
		auth:      auth.NewAuthenticator(config.APIKey, config.Tokens),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.config.ProcessTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
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
		return ctx.Err()
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

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeMenuRead)).Get("/v1/menu", s.handleGetMenu)
		r.With(s.requireScopes(auth.ScopeMenuWrite)).Put("/v1/menu", s.handlePutMenu)
		r.With(s.requireScopes(auth.ScopeMenuRead)).Get("/v1/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeProcess)).Post("/v1/process", s.handleProcess)
		r.With(s.requireScopes(auth.ScopeHistory)).Get("/v1/history", s.handleHistory)
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
