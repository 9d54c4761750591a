package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/cabinbooking/config"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type Server struct {
	httpServer *http.Server
	drains     []func()

	ready chan struct{}
	addr  string
}

// NewServer wraps handler in an HTTP server. Every drain func runs after the
// server stopped accepting requests, before Run returns.
func NewServer(cfg config.HTTPConfig, handler http.Handler, drains ...func()) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		drains: drains,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. It is only valid after Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is canceled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.httpServer.Addr, err)
	}
	s.addr = lis.Addr().String()
	close(s.ready)
	log.Printf("http server listening on %s", s.addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(lis) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.httpServer.Shutdown(shutdownCtx)
		for _, drain := range s.drains {
			drain()
		}
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Printf("http server stopped")
		return nil
	}
}
