package auth

import (
	"context"
	"sync"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/metrics"
)

// PasswordWriter persists a freshly cached password hash. Datastores that
// can write implement it.
type PasswordWriter interface {
	WritePassword(ctx context.Context, userID, hash string) error
}

// FallbackRadius authenticates users that have a stored password
// internally and everyone else upstream. An upstream accept caches the
// password as an argon2id hash, so later logins stay local.
type FallbackRadius struct {
	internal *Internal
	radius   *Radius
	writer   PasswordWriter
	metrics  metrics.AuthMetrics
	hash     func(string) (string, error)

	locks keyedMutex
}

// NewFallbackRadius combines internal and radius. writer and m may be nil.
func NewFallbackRadius(internal *Internal, radius *Radius, writer PasswordWriter, m metrics.AuthMetrics) *FallbackRadius {
	return &FallbackRadius{
		internal: internal,
		radius:   radius,
		writer:   writer,
		metrics:  m,
		hash:     HashPassword,
	}
}

// Name returns "fallback-radius".
func (p *FallbackRadius) Name() string { return ProviderFallbackRadius }

// Authenticate serializes per user so the check-then-cache sequence cannot
// interleave with another login of the same user.
func (p *FallbackRadius) Authenticate(ctx context.Context, req *Request) (*Result, error) {
	u := req.User
	if u == nil {
		return nil, ErrAuthenticationFailed
	}

	unlock := p.locks.lock(u.ID)
	defer unlock()

	if u.HasPassword() {
		return p.internal.Authenticate(ctx, req)
	}

	res, err := p.radius.Authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Provider = ProviderFallbackRadius

	// With a second factor the password carries a one-time token and
	// must not be cached.
	if req.MFARequired {
		return res, nil
	}

	hash, err := p.hash(req.Password)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to hash upstream password", logger.KeyUsername, u.Username, logger.Err(err))
		return res, nil
	}
	u.SetPassword(hash)

	persisted := true
	if p.writer != nil {
		if err := p.writer.WritePassword(ctx, u.ID, hash); err != nil {
			persisted = false
			logger.WarnCtx(ctx, "Failed to persist cached password",
				logger.KeyUsername, u.Username, logger.KeyUserID, u.ID, logger.Err(err))
		}
	}
	metrics.RecordPasswordCached(p.metrics, persisted)
	logger.DebugCtx(ctx, "Cached upstream password", logger.KeyUsername, u.Username)
	return res, nil
}

// keyedMutex hands out one mutex per key, dropping it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
