package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ao/serengeti/pkg/logging"
)

// DefaultDrainTimeout bounds how long shutdown waits for in-flight
// requests.
const DefaultDrainTimeout = 10 * time.Second

// GracefulServer wraps an HTTP server with signal-driven graceful
// shutdown. Once shutdown starts, IsShuttingDown reports true so the
// query endpoint can refuse new work while existing requests drain.
type GracefulServer struct {
	server       *http.Server
	drainTimeout time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	log logging.Logger
}

// NewGracefulServer creates a server on addr with the given handler
func NewGracefulServer(addr string, handler http.Handler, drainTimeout time.Duration, log logging.Logger) *GracefulServer {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		drainTimeout: drainTimeout,
		shutdownCh:   make(chan struct{}),
		log:          log,
	}
}

// Start serves until Shutdown is called or a signal arrives. It blocks
// and returns nil on a clean shutdown.
func (gs *GracefulServer) Start() error {
	go gs.handleSignals()

	gs.log.Info("http server listening", logging.String("addr", gs.server.Addr))
	if err := gs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (gs *GracefulServer) Shutdown() error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), gs.drainTimeout)
		defer cancel()

		gs.log.Info("draining http server",
			logging.Duration("timeout", gs.drainTimeout))
		if shutdownErr := gs.server.Shutdown(ctx); shutdownErr != nil {
			err = shutdownErr
			gs.log.Error("shutdown failed", logging.Err(shutdownErr))
			return
		}
		gs.log.Info("http server stopped")
	})
	return err
}

func (gs *GracefulServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		gs.log.Info("shutdown signal received", logging.String("signal", sig.String()))
		gs.Shutdown()
	case <-gs.shutdownCh:
	}
}

// IsShuttingDown reports whether shutdown has started
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel closes when shutdown starts
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}
