// Package server provides server lifecycle management including graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ShutdownManager coordinates signal handling and resource cleanup. The
// datastore registers as a closer so pending transactions commit before the
// process exits.
type ShutdownManager struct {
	timeout time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	closers   []io.Closer
	closersMu sync.Mutex

	httpServers []*http.Server
}

// NewShutdownManager creates a shutdown manager. A zero timeout defaults to
// 30 seconds.
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}
}

// RegisterCloser adds a closer to be called during shutdown. Closers run in
// reverse order of registration.
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// RegisterHTTPServer adds an HTTP server to be drained during shutdown.
func (sm *ShutdownManager) RegisterHTTPServer(srv *http.Server) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.httpServers = append(sm.httpServers, srv)
}

// ListenForSignals blocks until SIGTERM, SIGINT or context cancellation, then
// runs the shutdown sequence.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return sm.Shutdown(context.Background())
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down")
		return sm.Shutdown(context.Background())
	case <-sm.shutdownCh:
		return nil
	}
}

// Shutdown drains the HTTP servers, then closes every registered closer in
// reverse order. It runs at most once.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	sm.shutdownOnce.Do(func() {
		close(sm.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.timeout)
		defer cancel()

		sm.closersMu.Lock()
		servers := sm.httpServers
		closers := sm.closers
		sm.closersMu.Unlock()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("addr", srv.Addr).Msg("http server shutdown failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn().Err(err).Msg("closer failed during shutdown")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
		log.Info().Msg("shutdown complete")
	})
	return shutdownErr
}

// Serve runs the HTTP server until shutdown, translating the expected
// ErrServerClosed into a clean exit.
func Serve(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
