package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/domain"
	"github.com/cmsrelay/internal/relay"
	"github.com/gin-gonic/gin"
)

// Server wraps the HTTP server
type Server struct {
	config       *config.Config
	relayService domain.RelayService
	engine       *gin.Engine
	logger       *slog.Logger
	httpServer   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, relayService domain.RelayService, logger *slog.Logger) *Server {
	// Set Gin mode based on environment; tests pick their own
	if gin.Mode() != gin.TestMode {
		if cfg.IsDevelopment() {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Middleware - order matters
	engine.Use(requestIDMiddleware())
	engine.Use(securityHeadersMiddleware())
	engine.Use(corsMiddleware(cfg))
	engine.Use(cacheControlMiddleware(cfg.OAuth.BasePath))
	engine.Use(loggerMiddleware(logger))
	engine.Use(bodyLimitMiddleware(maxBodySize))

	engine.SetHTMLTemplate(relay.Template())

	addr := cfg.ServerAddress
	if addr == "" {
		addr = ":8080"
	}

	server := &Server{
		config:       cfg,
		relayService: relayService,
		engine:       engine,
		logger:       logger,
		// Configure server with timeouts
		httpServer: &http.Server{
			Addr:           addr,
			Handler:        engine,
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			IdleTimeout:    idleTimeout,
			MaxHeaderBytes: maxHeaderBytes,
		},
	}

	// Setup routes
	server.setupRoutes()

	return server
}

const (
	maxBodySize    = 64 << 10 // OAuth requests are a handful of short parameters
	readTimeout    = 10 * time.Second
	writeTimeout   = 30 * time.Second // covers the upstream token exchange
	idleTimeout    = 120 * time.Second
	maxHeaderBytes = 1 << 20 // 1MB max header size
)

// Handler returns the gin engine as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until it stops. A graceful Shutdown is not an error.
func (s *Server) Run() error {
	s.logger.Info("relay listening", "address", s.httpServer.Addr, "base_path", s.config.OAuth.BasePath)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests or ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
