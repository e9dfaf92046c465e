package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`

	// AuthSecret is the HMAC secret for bearer tokens. Empty disables
	// authentication.
	AuthSecret string `yaml:"auth_secret"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8880",
		ReadTimeout: 10 * time.Second,
		// Forced full resyncs answer on the same request, so the write
		// window must cover a whole run.
		WriteTimeout: 15 * time.Minute,
	}
}

// Server wraps the HTTP listener lifecycle.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the server with the handler's routes mounted.
func NewServer(cfg Config, handler *Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	handler.Register(mux, cfg.AuthSecret)

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger.With("component", "http"),
	}
}

// Start begins serving. It returns when the listener stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
