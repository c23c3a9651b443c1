// Package server exposes the relay over a websocket endpoint and serves the
// read-only chat, model and metrics HTTP APIs.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/relay"
)

// Server owns the HTTP handlers and the websocket sessions they spawn.
type Server struct {
	baseCtx  context.Context
	settings Settings
	relay    relay.Deps
	catalog  *providers.Catalog
	gatherer prometheus.Gatherer

	mux      *http.ServeMux
	httpSrv  *http.Server
	upgrader websocket.Upgrader
	conns    *connectionPool
}

// Options carries the collaborators a Server is built from. Relay.Store is
// also used by the read API.
type Options struct {
	Settings Settings
	Relay    relay.Deps
	Catalog  *providers.Catalog
	Gatherer prometheus.Gatherer
}

func New(ctx context.Context, opts Options) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if opts.Relay.Registry == nil {
		return nil, errors.New("server: strategy registry is required")
	}
	if opts.Relay.Store == nil {
		return nil, errors.New("server: chat store is required")
	}
	if opts.Relay.Opener == nil {
		return nil, errors.New("server: event opener is required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		baseCtx:  ctx,
		settings: opts.Settings,
		relay:    opts.Relay,
		catalog:  opts.Catalog,
		gatherer: opts.Gatherer,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    newConnectionPool(),
	}
	s.registerHTTPHandlers()
	s.httpSrv = &http.Server{
		Addr:              s.settings.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerHTTPHandlers() {
	s.mux.HandleFunc("/", s.handleWebSocket)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /api/chats", s.handleListChats)
	s.mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /api/focus-modes", s.handleFocusModes)
}

// Run serves until ctx is cancelled, then shuts the listener down and closes
// every open websocket connection.
func (s *Server) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down gracefully...")
		timeout := s.settings.ShutdownTimeout()
		if timeout <= 0 {
			timeout = DefaultSettings().ShutdownTimeout()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.conns.CloseAll()
		if err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.settings.Addr).Msg("starting focusrelay server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

// connectionPool tracks hijacked websocket connections, which http.Server
// does not close on Shutdown.
type connectionPool struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newConnectionPool() *connectionPool {
	return &connectionPool{conns: map[*websocket.Conn]struct{}{}}
}

func (cp *connectionPool) Add(conn *websocket.Conn) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.conns[conn] = struct{}{}
}

func (cp *connectionPool) Remove(conn *websocket.Conn) {
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.mu.Unlock()
	_ = conn.Close()
}

func (cp *connectionPool) Len() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *connectionPool) CloseAll() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for conn := range cp.conns {
		_ = conn.Close()
	}
}
