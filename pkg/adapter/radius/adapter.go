// Package radius answers RADIUS Access-Requests against the directory.
//
// The server accepts PAP Access-Requests only. Each one is resolved to a
// user through the configured lookup keys and checked with the same
// authenticator the LDAP adapter uses. Every other packet is dropped.
package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	goradius "layeh.com/radius"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
)

// Adapter is the RADIUS server: one UDP socket served by a
// goradius.PacketServer.
type Adapter struct {
	config  Config
	tree    *directory.Tree
	authn   auth.Authenticator
	gate    *access.Control
	metrics metrics.RADIUSMetrics

	server *goradius.PacketServer

	mu   sync.Mutex
	conn net.PacketConn

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// New builds a stopped RADIUS adapter. gate and m may be nil.
func New(config Config, tree *directory.Tree, authn auth.Authenticator, gate *access.Control, m metrics.RADIUSMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid RADIUS config: %w", err)
	}
	if tree == nil || authn == nil {
		return nil, errors.New("invalid RADIUS config: tree and authenticator are required")
	}

	a := &Adapter{
		config:  config,
		tree:    tree,
		authn:   authn,
		gate:    gate,
		metrics: m,
		ready:   make(chan struct{}),
	}
	a.server = &goradius.PacketServer{
		SecretSource: goradius.StaticSecretSource([]byte(config.Secret)),
		Handler:      goradius.HandlerFunc(a.handle),
	}

	logger.Debug("RADIUS adapter configured",
		"keys", config.Keys,
		"mfa_required", config.MFARequired,
		"authentication", authn.Name())
	return a, nil
}

// Serve listens on the configured UDP port and answers requests until ctx is
// cancelled or Stop is called. A nil return means a clean shutdown.
func (a *Adapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(a.config.BindAddress, strconv.Itoa(a.config.Port))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		a.markReady()
		return fmt.Errorf("failed to create RADIUS listener on %s: %w", addr, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.markReady()

	logger.Info("RADIUS server listening", logger.KeyListenAddr, conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(shutdownCtx)
	}()

	err = a.server.Serve(conn)
	if errors.Is(err, goradius.ErrServerShutdown) || errors.Is(err, net.ErrClosed) {
		logger.Info("RADIUS server stopped")
		return nil
	}
	return err
}

// Stop shuts the packet server down, waiting for in-flight handlers until
// ctx expires. Safe to call more than once.
func (a *Adapter) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		logger.Debug("RADIUS shutdown initiated")
		a.stopErr = a.server.Shutdown(ctx)
		a.mu.Lock()
		if a.conn != nil {
			_ = a.conn.Close()
		}
		a.mu.Unlock()
		a.markReady()
	})
	return a.stopErr
}

func (a *Adapter) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// Addr blocks until the socket is bound and returns its address, or "" when
// binding failed.
func (a *Adapter) Addr() string {
	<-a.ready
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return ""
	}
	return a.conn.LocalAddr().String()
}

// Protocol returns "RADIUS".
func (a *Adapter) Protocol() string { return "RADIUS" }

// Port returns the configured UDP port.
func (a *Adapter) Port() int { return a.config.Port }
