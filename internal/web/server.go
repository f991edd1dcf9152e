package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/registry"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second

	// shutdownTimeout bounds the graceful drain on exit.
	shutdownTimeout = 5 * time.Second
)

// Triggerer starts one update cycle. *ota.VersionManager implements it.
type Triggerer interface {
	TriggerUpdate(ctx context.Context) error
}

// Server is the launcher's local status surface: registry snapshot, manual
// update trigger, and Prometheus metrics.
type Server struct {
	http    *http.Server
	started time.Time
}

// New builds the status server listening on address.
func New(
	address string,
	reg *registry.Registry,
	trigger Triggerer,
	gatherer prometheus.Gatherer,
) *Server {
	server := &Server{started: time.Now()}

	server.http = &http.Server{
		Addr:              address,
		Handler:           server.router(reg, trigger, gatherer),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server
}

// Handler exposes the routed handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "web")

	s.http.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	errCh := make(chan error, 1)

	go func() {
		logger.InfoKV(ctx, "Status server listening", "address", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stop status server: %w", err)
		}

		return ctx.Err()
	}
}
