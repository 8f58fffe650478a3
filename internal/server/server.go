// Package server exposes the speech engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzhttp"
)

// Config configures the HTTP server.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	// Gzip compresses JSON responses for clients that accept it.
	Gzip bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8765,
		ReadTimeout:  30 * time.Second,
		MaxBodyBytes: 1 << 20,
		Gzip:         true,
	}
}

// Server is the HTTP front end of the speech engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	engine     Speaker
	logger     *log.Logger
	config     Config
}

// New creates a server around engine.
func New(cfg Config, engine Speaker, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		engine: engine,
		logger: logger,
		config: cfg,
	}

	var handler http.Handler = s.routes()
	if cfg.Gzip {
		// audio is already dense, only compress JSON
		wrap, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"application/json"}))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip handler: %w", err)
		}
		handler = wrap(handler)
	}
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(logger, handler)
	s.handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("Starting "+ServiceName,
		"host", s.config.Host,
		"port", s.config.Port,
		"engine", s.engine.Name(),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartAsync binds the listener and serves in the background. Listen errors
// are returned directly.
func (s *Server) StartAsync() error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address(), err)
	}
	s.logger.Info("Starting "+ServiceName+" (async)",
		"address", ln.Addr().String(),
		"engine", s.engine.Name(),
	)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down. Requests in flight finish first.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping " + ServiceName)
	return s.httpServer.Shutdown(ctx)
}

// Address returns the listen address.
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}
