// Package tcp is the connection manager shared by the gateway and node
// adapters: accept loop, connection cap, per-connection goroutines and the
// graceful-then-forced shutdown sequence.
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/metrics"
)

// Connection serves one accepted connection until the peer leaves, a fatal
// error occurs or ctx is cancelled. It owns closing the connection.
type Connection interface {
	Serve(ctx context.Context)
}

// ConnectionFactory wraps an accepted connection.
type ConnectionFactory func(conn net.Conn) Connection

// Server accepts TCP connections and runs each on its own goroutine.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (sessions stop after their current command)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is idempotent.
type Server struct {
	name    string
	config  Config
	newConn ConnectionFactory
	metrics metrics.ServerMetrics

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	// activeConns tracks live sessions for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// connSemaphore caps concurrent connections; nil when unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is handed to every connection and cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure.
	activeConnections sync.Map
}

// NewServer creates a stopped Server. name prefixes log lines ("gateway",
// "node .pdf"). Invalid configuration panics, as it is a programmer error.
func NewServer(name string, config Config, factory ConnectionFactory, m metrics.ServerMetrics) *Server {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid %s listener config: %v", name, err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("%s connection limit: %d", name, config.MaxConnections)
	} else {
		logger.Debug("%s connection limit: unlimited", name)
	}

	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Server{
		name:           name,
		config:         config,
		newConn:        factory,
		metrics:        m,
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Serve listens and accepts until ctx is cancelled or Stop is called, then
// drains. It returns nil after a clean drain and an error if connections had
// to be force-closed or the listener could not be opened.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", s.name, addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	select {
	case <-s.shutdown:
		// Stop raced ahead of the listener.
		_ = listener.Close()
		return s.gracefulShutdown()
	default:
	}

	logger.Info("%s listening on %s", s.name, listener.Addr())
	logger.Debug("%s config: max_connections=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.name, s.config.MaxConnections, s.config.Timeouts.Read, s.config.Timeouts.Write, s.config.Timeouts.Idle)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("%s shutdown signal received: %v", s.name, ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting %s connection: %v", s.name, err)
				continue
			}
		}

		if !s.acquire() {
			logger.Warn("%s connection from %s rejected: limit of %d reached",
				s.name, tcpConn.RemoteAddr(), s.config.MaxConnections)
			s.metrics.RecordConnectionRejected()
			_ = tcpConn.Close()
			continue
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)
		logger.Debug("%s connection accepted from %s (active: %d)", s.name, connAddr, current)

		conn := s.newConn(tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				current := s.connCount.Add(-1)
				s.release()

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(current)
				logger.Debug("%s connection closed from %s (active: %d)", s.name, addr, current)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

func (s *Server) acquire() bool {
	if s.connSemaphore == nil {
		return true
	}
	select {
	case s.connSemaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}

// initiateShutdown closes the listener and cancels in-flight sessions. Safe
// to call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("%s shutdown initiated", s.name)
		close(s.shutdown)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing %s listener: %v", s.name, err)
			}
		}
		s.mu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for sessions, then
// force-closes whatever is left.
func (s *Server) gracefulShutdown() error {
	logger.Info("%s graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.name, s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.drained():
		logger.Info("%s graceful shutdown complete", s.name)
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("%s shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			s.name, remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", s.name, remaining)
	}
}

func (s *Server) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked connection so blocked reads
// and writes fail and their goroutines exit.
func (s *Server) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	if closed > 0 {
		logger.Info("%s force-closed %d connection(s)", s.name, closed)
	}
}

// Stop initiates shutdown and waits for sessions until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.drained():
		return nil
	case <-ctx.Done():
		logger.Warn("%s shutdown context cancelled: %d connection(s) still active: %v",
			s.name, s.connCount.Load(), ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *Server) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("%s metrics: active_connections=%d", s.name, s.connCount.Load())
		}
	}
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Serve has listened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port once listening, the configured one before.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// ActiveConnections returns the number of live sessions.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.config
}

// Done is closed when shutdown begins.
func (s *Server) Done() <-chan struct{} {
	return s.shutdown
}
