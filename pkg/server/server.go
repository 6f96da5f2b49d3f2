// Package server runs a set of protocol adapters, plus the optional metrics
// endpoint, as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/adapter"
	"github.com/marmos91/shardgate/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Server manages the lifecycle of protocol adapters.
//
// Lifecycle:
//  1. Creation: New()
//  2. Registration: AddAdapter() for each listener, SetMetricsServer() optionally
//  3. Startup: Serve() runs everything concurrently
//  4. Shutdown: context cancellation drains every adapter; an adapter failing
//     or returning early cancels the others
//
// Example usage:
//
//	srv := server.New()
//	_ = srv.AddAdapter(gw.Adapter)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	mu       sync.Mutex
	adapters []adapter.Adapter
	metrics  *metrics.Server
	served   bool
	stopping atomic.Bool
	cancel   context.CancelFunc
}

// New creates an empty Server.
func New() *Server {
	return &Server{adapters: make([]adapter.Adapter, 0, 2)}
}

// AddAdapter registers an adapter. Two adapters may not share a fixed port;
// port 0 (chosen by the OS) never conflicts.
//
// Panics if a is nil or Serve has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	port := a.Port()
	for _, existing := range s.adapters {
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Debug("Registered %s adapter on port %d", a.Protocol(), port)
	return nil
}

// SetMetricsServer runs m alongside the adapters. nil disables it.
func (s *Server) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]adapter.Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}

// Serve runs every adapter until ctx is cancelled or one of them fails.
//
// Returns ctx.Err() after a shutdown triggered by ctx, nil after Stop, and
// the first adapter error otherwise. Serve may only be called once.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server: Serve() has already been called")
	}
	s.served = true
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metrics
	s.mu.Unlock()

	if len(adapters) == 0 {
		return errors.New("server: no adapters registered")
	}

	logger.Info("Starting %d adapter(s)", len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		g.Go(func() error {
			err := a.Serve(gctx)
			switch {
			case err != nil:
				logger.Error("%s adapter failed: %v", a.Protocol(), err)
				return fmt.Errorf("%s adapter: %w", a.Protocol(), err)
			case gctx.Err() == nil && !s.stopping.Load():
				return fmt.Errorf("%s adapter stopped unexpectedly", a.Protocol())
			default:
				logger.Debug("%s adapter stopped", a.Protocol())
				return nil
			}
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
	}

	err := g.Wait()
	if err == nil {
		err = parent.Err()
	}
	logger.Info("All adapters stopped")
	return err
}

// Stop signals every adapter to shut down, in reverse registration order,
// then stops the metrics endpoint. Serve returns nil once they have drained.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Store(true)
	adapters := s.Adapters()

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		defer cancel()
	}

	var errs []error
	for i := len(adapters) - 1; i >= 0; i-- {
		if err := adapters[i].Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adapters[i].Protocol(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
