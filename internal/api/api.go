// Package api exposes the SAGE conversation engine over HTTP.
//
// Endpoints cover the three conversation event kinds (message, choice,
// action) plus conversation start, reset, and a health check.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecsf-gov/sage/internal/flow"
	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/store"
)

// DefaultAddr is where the API listens when no address is configured.
const DefaultAddr = ":8080"

// Server holds the API dependencies.
type Server struct {
	engine  *flow.Engine
	store   store.Store
	gateway genai.ClientInterface
	addr    string
	httpSrv *http.Server
}

// Opts holds configuration options for the server.
type Opts struct {
	Addr    string
	Engine  *flow.Engine
	Store   store.Store
	Gateway genai.ClientInterface
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithEngine sets the conversation engine.
func WithEngine(engine *flow.Engine) Option {
	return func(o *Opts) { o.Engine = engine }
}

// WithStore sets the context store used by the health check.
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithGateway sets the LLM gateway used by the health check. May be nil.
func WithGateway(gateway genai.ClientInterface) Option {
	return func(o *Opts) { o.Gateway = gateway }
}

// NewServer creates a server from the provided options.
func NewServer(opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Engine == nil {
		return nil, errors.New("api server requires an engine")
	}
	if cfg.Store == nil {
		return nil, errors.New("api server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{engine: cfg.Engine, store: cfg.Store, gateway: cfg.Gateway, addr: cfg.Addr}, nil
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/start", s.startHandler)
	mux.HandleFunc("/conversations/message", s.messageHandler)
	mux.HandleFunc("/conversations/choice", s.choiceHandler)
	mux.HandleFunc("/conversations/action", s.actionHandler)
	mux.HandleFunc("/conversations/reset", s.resetHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	slog.Info("Server.Run: API stopped")
	return nil
}
