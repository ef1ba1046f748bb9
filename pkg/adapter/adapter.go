// Package adapter holds what the protocol front ends share: the Adapter
// lifecycle contract and BaseAdapter, the TCP accept loop with connection
// tracking and graceful shutdown.
package adapter

import "context"

// Adapter is one protocol server managed by the runtime.
//
// Lifecycle:
//  1. Creation with protocol configuration, the directory tree, the
//     authenticator and the access gate
//  2. Serve starts listening and blocks until ctx is cancelled
//  3. Stop shuts down gracefully within the context deadline
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve blocks until ctx is cancelled or the listener fails. A nil
	// return means a graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for in-flight work until ctx expires.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging, e.g. "LDAP".
	Protocol() string

	// Port returns the configured port.
	Port() int
}
