package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dapla-platform/dapla/internal/config"
	"github.com/dapla-platform/dapla/internal/dap"
	"github.com/dapla-platform/dapla/internal/eventbus"
	"github.com/dapla-platform/dapla/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HistoryStore exposes a readonly view of recorded lifecycle events.
type HistoryStore interface {
	ListDapEvents(ctx context.Context, name string, limit int) ([]store.DapEvent, error)
}

// Options configures the platform HTTP server.
type Options struct {
	Config  config.Config
	Service *dap.Service
	Bus     *eventbus.Bus
	History HistoryStore
}

// Server exposes the dap registry over HTTP: the admin API under /dapla,
// static assets and stub module routes for every registered dap, and a
// WebSocket event stream.
type Server struct {
	cfg     config.Config
	service *dap.Service
	bus     *eventbus.Bus
	history HistoryStore

	httpServer *http.Server
}

// New constructs a server; Routes composition happens at Start.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: dap service is required")
	}
	return &Server{
		cfg:     opts.Config,
		service: opts.Service,
		bus:     opts.Bus,
		history: opts.History,
	}, nil
}

// Start composes the routes and serves until Shutdown or listener failure.
// It blocks; http.ErrServerClosed is swallowed as the normal shutdown path.
func (s *Server) Start() error {
	handler, err := s.Routes()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log.Printf("[APIServer] listening on %s", s.cfg.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr(), err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
