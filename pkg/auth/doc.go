// Package auth verifies user credentials for every protocol front end.
//
// The package defines:
//
//   - Authenticator: the contract LDAP, RADIUS and the session API call
//   - Internal: argon2id/bcrypt password check with an optional TOTP suffix
//   - Radius: proxies the check to an upstream RADIUS server
//   - FallbackRadius: internal when a password is stored, otherwise radius,
//     caching the password after an upstream accept
//
// Exactly one provider is selected at boot with New. Rejections wrap
// ErrAuthenticationFailed; the specific reason is only for debug logging
// and must never reach a client.
package auth
