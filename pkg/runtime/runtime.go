// Package runtime assembles a running dapper server from its configuration:
// the datastore, the directory tree, the authenticator, the LDAP, RADIUS
// and API servers and the session store.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/adapter"
	"github.com/marmos91/dapper/pkg/adapter/ldap"
	"github.com/marmos91/dapper/pkg/adapter/radius"
	"github.com/marmos91/dapper/pkg/api"
	"github.com/marmos91/dapper/pkg/api/token"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/config"
	"github.com/marmos91/dapper/pkg/datastore"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
	"github.com/marmos91/dapper/pkg/metrics/prometheus"
	"github.com/marmos91/dapper/pkg/session"
)

// Runtime owns every long-lived component of the server.
type Runtime struct {
	cfg *config.Config

	provider datastore.Provider
	tree     *directory.Tree
	authn    auth.Authenticator
	sessions *session.Store

	ldap    *ldap.Adapter
	radius  *radius.Adapter
	api     *api.Server
	servers []adapter.Adapter

	serveOnce sync.Once
	closeOnce sync.Once
}

// New opens the datastore, loads the directory and builds the enabled
// servers. Nothing listens until Serve is called. Configuration errors
// (unknown providers, malformed CIDRs, missing secrets) surface here.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	provider, err := datastore.New(ctx, cfg.Datastore)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{cfg: cfg, provider: provider}

	if err := rt.build(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) build(ctx context.Context) error {
	cfg := r.cfg

	tree, err := datastore.LoadTree(ctx, r.provider, cfg.Directory)
	if err != nil {
		return err
	}
	r.tree = tree

	authn, err := auth.New(cfg.Auth, auth.Options{
		AllowPlainTextPasswords: tree.Config().AllowPlainTextPasswords,
		Writer:                  datastore.Writer(r.provider),
		Metrics:                 prometheus.NewAuthMetrics(),
	})
	if err != nil {
		return err
	}
	r.authn = authn
	logger.Info("Authentication provider ready", logger.KeyProvider, cfg.Auth.Provider)

	if cfg.LDAP.Enabled {
		gate, err := newGate("ldap", cfg.LDAP.Access)
		if err != nil {
			return err
		}
		r.ldap, err = ldap.New(cfg.LDAP, tree, authn, gate, prometheus.NewLDAPMetrics())
		if err != nil {
			return err
		}
		r.servers = append(r.servers, r.ldap)
	}

	if cfg.Radius.Enabled {
		gate, err := newGate("radius", cfg.Radius.Access)
		if err != nil {
			return err
		}
		r.radius, err = radius.New(cfg.Radius, tree, authn, gate, prometheus.NewRADIUSMetrics())
		if err != nil {
			return err
		}
		r.servers = append(r.servers, r.radius)
	}

	if cfg.API.Enabled {
		gate, err := newGate("api", cfg.API.Access)
		if err != nil {
			return err
		}
		apiMetrics := prometheus.NewAPIMetrics()
		r.sessions = session.New(cfg.Sessions, apiMetrics)

		tokens, err := token.NewService(cfg.Sessions.Secret)
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		if cfg.Sessions.Secret == "" {
			logger.Warn("No sessions.secret configured; session tokens will not survive a restart")
		}

		r.api, err = api.NewServer(cfg.API, api.Dependencies{
			Tree:     tree,
			Authn:    authn,
			Sessions: r.sessions,
			Tokens:   tokens,
			Gate:     gate,
			Metrics:  apiMetrics,
		})
		if err != nil {
			return err
		}
		r.servers = append(r.servers, r.api)
	}

	if len(r.servers) == 0 {
		return errors.New("no server enabled: enable at least one of ldap, radius or api")
	}
	return nil
}

func newGate(name string, cfg access.Config) (*access.Control, error) {
	gate, err := access.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s.access: %w", name, err)
	}
	return gate, nil
}

// Serve runs every server and the session store until ctx is cancelled or
// one of them fails, then shuts the rest down and closes the datastore.
// Serve may only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime already served")
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting dapper runtime", "servers", len(r.servers))

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range r.servers {
		g.Go(func() error {
			logger.Info("Starting server", logger.KeyProtocol, srv.Protocol(), "port", srv.Port())
			if err := srv.Serve(gctx); err != nil {
				return fmt.Errorf("%s server: %w", srv.Protocol(), err)
			}
			return nil
		})
	}
	if r.sessions != nil {
		g.Go(func() error {
			return r.sessions.Run(gctx)
		})
	}

	err := r.wait(ctx, g)
	if err != nil {
		logger.Error("Runtime stopped with error", logger.Err(err))
	} else {
		logger.Info("Runtime stopped")
	}

	if cerr := r.Close(); cerr != nil {
		logger.Warn("Error closing datastore", logger.Err(cerr))
	}
	return err
}

// forceCloseGrace lets adapters whose own shutdown deadline equals the
// global one finish force-closing before wait gives up.
const forceCloseGrace = 5 * time.Second

// wait returns when every server has stopped. Once ctx is cancelled the
// servers get shutdown_timeout to drain before wait gives up on them.
func (r *Runtime) wait(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	if r.cfg.ShutdownTimeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(r.cfg.ShutdownTimeout + forceCloseGrace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("shutdown timed out after %s", r.cfg.ShutdownTimeout)
	}
}

// Close releases the datastore. Serve calls it on the way out.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.provider != nil {
			err = r.provider.Close()
		}
	})
	return err
}

// Tree returns the loaded directory.
func (r *Runtime) Tree() *directory.Tree { return r.tree }

// Servers returns the enabled servers in start order.
func (r *Runtime) Servers() []adapter.Adapter { return r.servers }

// LDAP returns the LDAP server, or nil when it is disabled.
func (r *Runtime) LDAP() *ldap.Adapter { return r.ldap }

// Radius returns the RADIUS server, or nil when it is disabled.
func (r *Runtime) Radius() *radius.Adapter { return r.radius }

// API returns the API server, or nil when it is disabled.
func (r *Runtime) API() *api.Server { return r.api }

// Sessions returns the session store, or nil when the API is disabled.
func (r *Runtime) Sessions() *session.Store { return r.sessions }
