package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/metrics"
)

// ConnectionHandler serves one accepted connection until it closes or ctx is
// cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates the protocol handler for an accepted connection.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// PreAccept decides whether an accepted connection is served. Returning
// false closes it before anything is read.
type PreAccept func(conn net.Conn) bool

// BaseConfig holds configuration common to TCP adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port. 0 picks a free port.
	Port int

	// TLS, when set, wraps the listener.
	TLS *tls.Config

	// MaxConnections limits concurrent connections. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds how long Serve waits for connections to drain
	// before force-closing them.
	ShutdownTimeout time.Duration

	// MetricsLogInterval, when positive, logs the connection count
	// periodically.
	MetricsLogInterval time.Duration
}

// BaseAdapter provides the shared TCP lifecycle. Protocol adapters embed it
// and supply a ConnectionFactory and an optional PreAccept hook.
//
// All exported methods are safe for concurrent use; shutdown is idempotent.
type BaseAdapter struct {
	Config BaseConfig

	// Metrics may be nil.
	Metrics metrics.ConnectionMetrics

	protocolName string

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once the listener is bound, or Serve failed
	// to bind.
	ListenerReady chan struct{}
	readyOnce     sync.Once

	// Shutdown is closed when shutdown starts.
	Shutdown     chan struct{}
	shutdownOnce sync.Once

	// ShutdownCtx is handed to every connection and cancelled on shutdown.
	ShutdownCtx    context.Context
	cancelRequests context.CancelFunc

	activeConns   sync.WaitGroup
	ConnCount     atomic.Int32
	connSemaphore chan struct{}

	// active maps remote address to net.Conn for forced closure.
	active sync.Map
}

// NewBaseAdapter returns a stopped BaseAdapter for protocol.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var sem chan struct{}
	if config.MaxConnections > 0 {
		sem = make(chan struct{}, config.MaxConnections)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		ListenerReady:  make(chan struct{}),
		Shutdown:       make(chan struct{}),
		ShutdownCtx:    ctx,
		cancelRequests: cancel,
		connSemaphore:  sem,
	}
}

func (b *BaseAdapter) markReady() {
	b.readyOnce.Do(func() { close(b.ListenerReady) })
}

// ServeWithFactory listens and runs the accept loop until ctx is cancelled or
// Stop is called.
//
// Returns nil on graceful shutdown, or an error if the listener could not be
// created or connections had to be force-closed.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory, preAccept PreAccept) error {
	addr := net.JoinHostPort(b.Config.BindAddress, fmt.Sprint(b.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.markReady()
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, addr, err)
	}
	if b.Config.TLS != nil {
		ln = tls.NewListener(ln, b.Config.TLS)
	}

	b.listenerMu.Lock()
	b.listener = ln
	b.listenerMu.Unlock()
	b.markReady()

	logger.Info(b.protocolName+" server listening",
		logger.KeyListenAddr, ln.Addr().String(),
		"tls", b.Config.TLS != nil)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.Err(ctx.Err()))
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			b.release()
			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.protocolName+" connection", logger.Err(err))
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		if preAccept != nil && !preAccept(conn) {
			logger.Debug(b.protocolName+" connection rejected", logger.KeyClientAddr, conn.RemoteAddr().String())
			metrics.RecordConnectionRejected(b.Metrics, "access")
			_ = conn.Close()
			b.release()
			continue
		}

		b.track(factory, conn)
	}
}

func (b *BaseAdapter) release() {
	if b.connSemaphore != nil {
		<-b.connSemaphore
	}
}

func (b *BaseAdapter) track(factory ConnectionFactory, conn net.Conn) {
	b.activeConns.Add(1)
	current := b.ConnCount.Add(1)

	remote := conn.RemoteAddr().String()
	b.active.Store(remote, conn)

	metrics.RecordConnectionAccepted(b.Metrics)
	metrics.SetActiveConnections(b.Metrics, current)
	logger.Debug(b.protocolName+" connection accepted", logger.KeyClientAddr, remote, "active", current)

	handler := factory.NewConnection(conn)

	go func() {
		defer func() {
			b.active.Delete(remote)
			_ = conn.Close()
			b.activeConns.Done()
			left := b.ConnCount.Add(-1)
			b.release()

			metrics.RecordConnectionClosed(b.Metrics)
			metrics.SetActiveConnections(b.Metrics, left)
			logger.Debug(b.protocolName+" connection closed", logger.KeyClientAddr, remote, "active", left)
		}()

		handler.Serve(b.ShutdownCtx)
	}()
}

// initiateShutdown closes the listener, interrupts blocked reads and
// cancels ShutdownCtx. Safe to call repeatedly.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.Err(err))
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.cancelRequests()
	})
}

func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	b.active.Range(func(_, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.SetReadDeadline(deadline)
		}
		return true
	})
}

func (b *BaseAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits up to ShutdownTimeout for connections, then
// force-closes the rest.
func (b *BaseAdapter) gracefulShutdown() error {
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		"active", b.ConnCount.Load(), "timeout", b.Config.ShutdownTimeout)

	select {
	case <-b.waitConnections():
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil
	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure", "active", remaining)
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

func (b *BaseAdapter) forceCloseConnections() {
	b.active.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err == nil {
			metrics.RecordConnectionForceClosed(b.Metrics)
			logger.Debug("Force-closed connection", logger.KeyClientAddr, key)
		}
		return true
	})
}

// Stop initiates shutdown and waits for connections until ctx is done.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()
	if ctx == nil {
		return b.gracefulShutdown()
	}

	select {
	case <-b.waitConnections():
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocolName+" shutdown context cancelled", "active", b.ConnCount.Load(), logger.Err(ctx.Err()))
		b.forceCloseConnections()
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Shutdown:
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" metrics", "active_connections", b.ConnCount.Load())
		}
	}
}

// ActiveConnections returns the number of open connections.
func (b *BaseAdapter) ActiveConnections() int32 {
	return b.ConnCount.Load()
}

// Addr blocks until the listener is bound and returns its address, or ""
// when binding failed.
func (b *BaseAdapter) Addr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int { return b.Config.Port }

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string { return b.protocolName }
