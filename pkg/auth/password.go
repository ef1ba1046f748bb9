package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters encoded into every hash.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params: 64 MiB, 3 passes, 2 lanes.
var DefaultArgon2Params = Argon2Params{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 2,
	SaltLen: 16,
	KeyLen:  32,
}

// ErrUnsupportedHash is returned for a stored password that is neither an
// argon2id nor a bcrypt hash while plaintext passwords are not allowed.
var ErrUnsupportedHash = errors.New("auth: unsupported password hash")

// ErrMalformedHash is returned for an argon2id hash that cannot be decoded.
var ErrMalformedHash = errors.New("auth: malformed argon2id hash")

const argon2Prefix = "$argon2id$"

var b64 = base64.RawStdEncoding

// HashPassword hashes password with argon2id and DefaultArgon2Params.
func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, DefaultArgon2Params)
}

// HashPasswordWithParams hashes password with argon2id and returns the PHC
// string form: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>.
func HashPasswordWithParams(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, p.Memory, p.Time, p.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// IsHashed reports whether stored is in a recognized hash format.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, argon2Prefix) || isBcrypt(stored)
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// VerifyPassword checks password against stored. A mismatch is (false, nil);
// an error means stored could not be used at all.
func VerifyPassword(password, stored string, allowPlainText bool) (bool, error) {
	switch {
	case stored == "":
		return false, ErrNoPassword
	case strings.HasPrefix(stored, argon2Prefix):
		return verifyArgon2(password, stored)
	case isBcrypt(stored):
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	case allowPlainText:
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, nil
	}
	return false, ErrUnsupportedHash
}

func decodeArgon2(stored string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(stored, "$")
	if len(parts) != 6 {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: version %d", ErrMalformedHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	p.SaltLen, p.KeyLen = uint32(len(salt)), uint32(len(key))
	return p, salt, key, nil
}

func verifyArgon2(password, stored string) (bool, error) {
	p, salt, key, err := decodeArgon2(stored)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// NeedsRehash reports whether stored should be replaced by a hash made with
// DefaultArgon2Params: it is bcrypt, plaintext, or a weaker argon2id hash.
func NeedsRehash(stored string) bool {
	if !strings.HasPrefix(stored, argon2Prefix) {
		return true
	}
	p, _, _, err := decodeArgon2(stored)
	if err != nil {
		return true
	}
	d := DefaultArgon2Params
	return p.Memory < d.Memory || p.Time < d.Time || p.Threads < d.Threads || p.KeyLen < d.KeyLen
}
