package auth

import (
	"context"
	"fmt"
	"time"
)

// Internal checks credentials against the password hash and TOTP secret
// stored on the user.
type Internal struct {
	allowPlainText bool
	now            func() time.Time
}

// NewInternal returns the internal provider. allowPlainText lets stored
// passwords that are not hashes be compared directly.
func NewInternal(allowPlainText bool) *Internal {
	return &Internal{allowPlainText: allowPlainText, now: time.Now}
}

// Name returns "internal".
func (p *Internal) Name() string { return ProviderInternal }

// Authenticate verifies req.Password, and with MFARequired its trailing
// TOTP token.
func (p *Internal) Authenticate(_ context.Context, req *Request) (*Result, error) {
	u := req.User
	if u == nil || u.Deleted {
		return nil, ErrAuthenticationFailed
	}
	if u.Attributes.AccountLocked {
		return nil, ErrAccountLocked
	}
	stored := u.Password()
	if stored == "" {
		return nil, ErrNoPassword
	}

	if !req.MFARequired {
		if err := p.verify(req.Password, stored); err != nil {
			return nil, err
		}
		return &Result{User: u, Provider: ProviderInternal}, nil
	}

	if !u.Attributes.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	password, token, ok := SplitToken(req.Password)
	if !ok {
		return nil, ErrInvalidPassword
	}
	if err := p.verify(password, stored); err != nil {
		return nil, err
	}
	if !ValidateTOTP(u.MFA, token, p.now()) {
		return nil, ErrInvalidToken
	}
	return &Result{User: u, Provider: ProviderInternal, MFAVerified: true}, nil
}

func (p *Internal) verify(password, stored string) error {
	ok, err := VerifyPassword(password, stored, p.allowPlainText)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	if !ok {
		return ErrInvalidPassword
	}
	return nil
}
