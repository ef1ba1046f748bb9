// Package ldap serves the directory tree over LDAPv3.
//
// Only simple Bind and Search are implemented. Search supports base, one and
// sub scope, the full RFC 4515 filter grammar except extensible matching, and
// the RFC 2696 simple paged results control. Every other operation is
// answered with unwillingToPerform, or protocolError for extended requests.
package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/adapter"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
)

// Adapter is the LDAP server. It embeds adapter.BaseAdapter for the TCP
// accept loop, connection tracking and graceful shutdown; this type only
// adds the protocol.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	tree    *directory.Tree
	authn   auth.Authenticator
	gate    *access.Control
	metrics metrics.LDAPMetrics

	nextConnID atomic.Uint64
}

// New builds a stopped LDAP adapter. gate and m may be nil.
//
// The tree must be fully loaded; it is only read from here on.
func New(config Config, tree *directory.Tree, authn auth.Authenticator, gate *access.Control, m metrics.LDAPMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid LDAP config: %w", err)
	}
	if tree == nil || authn == nil {
		return nil, errors.New("invalid LDAP config: tree and authenticator are required")
	}

	base := adapter.BaseConfig{
		BindAddress:        config.BindAddress,
		Port:               config.Port,
		MaxConnections:     config.MaxConnections,
		ShutdownTimeout:    config.Timeouts.Shutdown,
		MetricsLogInterval: config.MetricsLogInterval,
	}
	if config.TLS.Enabled() {
		tlsConfig, err := config.TLS.Load()
		if err != nil {
			return nil, err
		}
		base.TLS = tlsConfig
	}

	a := &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(base, "LDAP"),
		config:      config,
		tree:        tree,
		authn:       authn,
		gate:        gate,
		metrics:     m,
	}
	if m != nil {
		a.BaseAdapter.Metrics = m
	}

	logger.Debug("LDAP adapter configured",
		"tls", config.TLS.Enabled(),
		"max_connections", config.MaxConnections,
		"max_message_size", config.MaxMessageSize,
		"authentication", authn.Name())
	return a, nil
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, a.allow)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newConnection(a, conn, a.nextConnID.Add(1))
}

// allow applies the access policy before anything is read from conn.
func (a *Adapter) allow(conn net.Conn) bool {
	if a.gate == nil {
		return true
	}
	return a.gate.CheckAddr(conn.RemoteAddr())
}
