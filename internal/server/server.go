// Package server hosts the HTTP and WebSocket endpoints behind the boot-time
// synchronization barrier: nothing listens until the hot store has been
// reconciled with the cold store.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"go-voicechat/internal/gateway"
	"go-voicechat/internal/logger"
)

type Synchronizer interface {
	PerformFullSynchronization(ctx context.Context) error
}

type ListenFunc func(network, address string) (net.Listener, error)

type Server struct {
	addr            string
	shutdownTimeout time.Duration
	sync            Synchronizer
	hub             *gateway.Hub
	handler         http.Handler
	listen          ListenFunc
	log             zerolog.Logger
}

type Option func(*Server)

// WithListen replaces net.Listen.
func WithListen(fn ListenFunc) Option {
	return func(s *Server) { s.listen = fn }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

func New(addr string, sync Synchronizer, hub *gateway.Hub, handler http.Handler, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		shutdownTimeout: 15 * time.Second,
		sync:            sync,
		hub:             hub,
		handler:         handler,
		listen:          net.Listen,
		log:             log.With().Str(logger.FieldComponent, "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run synchronizes the stores, starts the hub and serves until ctx is done.
// A failed synchronization returns before any listener exists.
func (s *Server) Run(ctx context.Context) error {
	if err := s.sync.PerformFullSynchronization(ctx); err != nil {
		return fmt.Errorf("startup synchronization: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	hubErr := make(chan error, 1)
	go func() { hubErr <- s.hub.Run(hubCtx) }()

	select {
	case <-s.hub.Ready():
	case err := <-hubErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("start hub: %w", err)
	case <-ctx.Done():
		return nil
	}

	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("🚀 Server listening")

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server...")
	case err := <-serveErr:
		s.log.Error().Err(err).Msg("❌ Server failed")
		runErr = err
	case err := <-hubErr:
		if ctx.Err() != nil {
			s.log.Info().Msg("shutting down server...")
			break
		}
		if err == nil {
			err = errors.New("hub stopped")
		}
		s.log.Error().Err(err).Msg("❌ Hub failed")
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("server forced to shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	// Hijacked websocket connections are not covered by Shutdown; stopping
	// the hub closes their send queues.
	stopHub()

	s.log.Info().Msg("server stopped")
	return runErr
}
