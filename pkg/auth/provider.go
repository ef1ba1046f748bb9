package auth

import (
	"fmt"

	"github.com/marmos91/dapper/pkg/metrics"
)

// Options carries the collaborators New wires into providers.
type Options struct {
	// AllowPlainTextPasswords is passed to the internal provider.
	AllowPlainTextPasswords bool

	// Writer persists fallback-radius cached passwords. May be nil.
	Writer PasswordWriter

	// Metrics may be nil.
	Metrics metrics.AuthMetrics
}

// New builds the provider named by cfg.Provider, instrumented with tracing,
// metrics and logging.
func New(cfg Config, opts Options) (Authenticator, error) {
	var a Authenticator
	switch cfg.Provider {
	case ProviderInternal, "":
		a = NewInternal(opts.AllowPlainTextPasswords)
	case ProviderRadius:
		a = NewRadius(cfg.Radius)
	case ProviderFallbackRadius:
		a = NewFallbackRadius(
			NewInternal(opts.AllowPlainTextPasswords),
			NewRadius(cfg.Radius),
			opts.Writer,
			opts.Metrics,
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return Instrument(a, opts.Metrics), nil
}
