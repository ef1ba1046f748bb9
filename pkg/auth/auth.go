package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
)

// Provider names accepted by New.
const (
	ProviderInternal       = "internal"
	ProviderRadius         = "radius"
	ProviderFallbackRadius = "fallback-radius"
)

// Standard authentication errors.
var (
	// ErrAuthenticationFailed is wrapped by every rejection.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	ErrAccountLocked   = fmt.Errorf("%w: account locked", ErrAuthenticationFailed)
	ErrNoPassword      = fmt.Errorf("%w: no password set", ErrAuthenticationFailed)
	ErrMFANotEnabled   = fmt.Errorf("%w: mfa required but not enabled", ErrAuthenticationFailed)
	ErrInvalidToken    = fmt.Errorf("%w: invalid one-time token", ErrAuthenticationFailed)
	ErrInvalidPassword = fmt.Errorf("%w: invalid password", ErrAuthenticationFailed)
	ErrUpstreamReject  = fmt.Errorf("%w: rejected upstream", ErrAuthenticationFailed)

	// ErrUpstream indicates the upstream server could not be reached or
	// answered with garbage. It is still a rejection for the caller.
	ErrUpstream = errors.New("auth: upstream unavailable")

	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("auth: unknown provider")
)

// Request is one credential check.
type Request struct {
	User     *directory.User
	Password string

	// MFARequired makes the last six characters of Password a TOTP token.
	MFARequired bool

	// Protocol and ClientIP are for logging only.
	Protocol string
	ClientIP string
}

// Result describes an accepted request.
type Result struct {
	User     *directory.User
	Provider string

	// MFAVerified is set when a TOTP token was checked.
	MFAVerified bool
}

// Authenticator verifies a Request. A nil error means accepted.
//
// Implementations must be safe for concurrent use.
type Authenticator interface {
	Name() string
	Authenticate(ctx context.Context, req *Request) (*Result, error)
}

// instrumented wraps an Authenticator with tracing, metrics and debug logging
// of rejection reasons.
type instrumented struct {
	next    Authenticator
	metrics metrics.AuthMetrics
}

// Instrument decorates a with spans, metrics and logging. m may be nil.
func Instrument(a Authenticator, m metrics.AuthMetrics) Authenticator {
	return &instrumented{next: a, metrics: m}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Authenticate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	username := ""
	if req.User != nil {
		username = req.User.Username
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanAuthenticate)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.AuthProvider(i.next.Name()), telemetry.Username(username))

	res, err := i.next.Authenticate(ctx, req)

	outcome := metrics.OutcomeAccepted
	switch {
	case err == nil:
	case errors.Is(err, ErrAuthenticationFailed):
		outcome = metrics.OutcomeRejected
		logger.DebugCtx(ctx, "Authentication rejected",
			logger.KeyProvider, i.next.Name(),
			logger.KeyUsername, username,
			logger.KeyProtocol, req.Protocol,
			logger.KeyClientIP, req.ClientIP,
			logger.Err(err))
	default:
		outcome = metrics.OutcomeError
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Authentication failed upstream",
			logger.KeyProvider, i.next.Name(),
			logger.KeyUsername, username,
			logger.Err(err))
	}
	metrics.RecordAuthentication(i.metrics, i.next.Name(), outcome, time.Since(start))
	return res, err
}
