package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/directory/directorytest"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestInternal() *Internal {
	p := NewInternal(false)
	p.now = func() time.Time { return fixedNow }
	return p
}

// ============================================================================
// Password only
// ============================================================================

func TestInternalPassword(t *testing.T) {
	tree := mfaTree(t)
	p := newTestInternal()
	ctx := context.Background()

	res, err := p.Authenticate(ctx, &Request{User: mustUser(t, tree, "foo"), Password: "secure"})
	require.NoError(t, err)
	assert.Equal(t, ProviderInternal, res.Provider)
	assert.False(t, res.MFAVerified)

	_, err = p.Authenticate(ctx, &Request{User: mustUser(t, tree, "foo"), Password: "insecure"})
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestInternalLockedAccount(t *testing.T) {
	tree := mfaTree(t)

	_, err := newTestInternal().Authenticate(context.Background(), &Request{User: mustUser(t, tree, "baz"), Password: "12345"})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestInternalNoPassword(t *testing.T) {
	u := &directory.User{ID: "1", Username: "nopw"}

	_, err := newTestInternal().Authenticate(context.Background(), &Request{User: u, Password: "anything"})
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestInternalRejectsNilAndDeleted(t *testing.T) {
	p := newTestInternal()

	_, err := p.Authenticate(context.Background(), &Request{Password: "x"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	u := &directory.User{ID: "1", Username: "gone", Deleted: true}
	u.SetPassword("x")
	_, err = NewInternal(true).Authenticate(context.Background(), &Request{User: u, Password: "x"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestInternalPlainText(t *testing.T) {
	u := &directory.User{ID: "1", Username: "plain"}
	u.SetPassword("hunter2")

	_, err := NewInternal(false).Authenticate(context.Background(), &Request{User: u, Password: "hunter2"})
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = NewInternal(true).Authenticate(context.Background(), &Request{User: u, Password: "hunter2"})
	assert.NoError(t, err)
}

// ============================================================================
// Second factor
// ============================================================================

func TestInternalMFA(t *testing.T) {
	tree := mfaTree(t)
	bar := mustUser(t, tree, "bar")
	p := newTestInternal()
	ctx := context.Background()

	code, err := GenerateTOTPCode(directorytest.MFASecret, fixedNow)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = p.Authenticate(ctx, &Request{User: bar, Password: "secret", MFARequired: true})
	assert.ErrorIs(t, err, ErrInvalidPassword, "no room for a token")

	_, err = p.Authenticate(ctx, &Request{User: bar, Password: "secret" + wrong, MFARequired: true})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.Authenticate(ctx, &Request{User: bar, Password: "public" + code, MFARequired: true})
	assert.ErrorIs(t, err, ErrInvalidPassword)

	res, err := p.Authenticate(ctx, &Request{User: bar, Password: "secret" + code, MFARequired: true})
	require.NoError(t, err)
	assert.True(t, res.MFAVerified)

	// Without MFA the token is part of the password.
	_, err = p.Authenticate(ctx, &Request{User: bar, Password: "secret" + code})
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, err = p.Authenticate(ctx, &Request{User: bar, Password: "secret"})
	assert.NoError(t, err)
}

func TestInternalMFANotEnabled(t *testing.T) {
	tree := mfaTree(t)

	_, err := newTestInternal().Authenticate(context.Background(), &Request{
		User:        mustUser(t, tree, "foo"),
		Password:    "secure123456",
		MFARequired: true,
	})
	assert.ErrorIs(t, err, ErrMFANotEnabled)
}
