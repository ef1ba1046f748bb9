// Package token issues and validates the JWTs that carry an API session id.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/dapper/pkg/session"
)

// DefaultIssuer is the iss claim of every token.
const DefaultIssuer = "dapper"

// MinSecretLength is the shortest accepted HMAC key.
const MinSecretLength = 32

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = fmt.Errorf("token secret must be at least %d characters", MinSecretLength)
)

// Claims identify one session. The session store, not the token, decides
// whether the session is still alive.
type Claims struct {
	jwt.RegisteredClaims

	// SessionID is the session the token was issued for.
	SessionID string `json:"sid"`
}

// Service signs and verifies HS256 tokens.
type Service struct {
	secret []byte
	issuer string
}

// NewService builds a Service. An empty secret is replaced by a random key.
func NewService(secret string) (*Service, error) {
	if secret == "" {
		var err error
		if secret, err = RandomSecret(); err != nil {
			return nil, err
		}
	}
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	return &Service{secret: []byte(secret), issuer: DefaultIssuer}, nil
}

// RandomSecret returns a hex-encoded 32 byte key.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue signs a token for sess.
func (s *Service) Issue(sess session.Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  sess.User,
			ID:       sess.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		SessionID: sess.ID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Validate checks the signature and issuer and returns the claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
