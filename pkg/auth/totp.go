package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TokenLength is the number of trailing password characters taken as the
// TOTP token when a second factor is required.
const TokenLength = 6

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SplitToken separates "<password><token>". It fails when nothing would be
// left for the password.
func SplitToken(password string) (secret, token string, ok bool) {
	if len(password) <= TokenLength {
		return "", "", false
	}
	cut := len(password) - TokenLength
	return password[:cut], password[cut:], true
}

// ValidateTOTP checks code against the base32 secret at time at, accepting
// one period of clock skew either way.
func ValidateTOTP(secret, code string, at time.Time) bool {
	if secret == "" || len(code) != TokenLength {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totpOpts)
	return err == nil && ok
}

// GenerateTOTPCode returns the current code for secret. Used by the CLI and
// tests.
func GenerateTOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}
