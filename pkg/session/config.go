package session

import "time"

// DefaultFile is the sync file name, resolved under the OS temp directory.
const DefaultFile = "dapper.sessions.json"

// Config controls session lifetime and persistence.
type Config struct {
	// TTL expires a session this long after its last use.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl" default:"24h" validate:"gt=0"`

	// Sync, when positive, writes live sessions to File at this interval
	// and reloads them at boot.
	Sync time.Duration `mapstructure:"sync" yaml:"sync" json:"sync" validate:"gte=0"`

	// File is the sync file. A relative name is placed in os.TempDir().
	File string `mapstructure:"file" yaml:"file" json:"file" default:"dapper.sessions.json"`

	// MFARequired makes session logins carry a TOTP suffix.
	MFARequired bool `mapstructure:"mfa_required" yaml:"mfa_required" json:"mfa_required"`

	// Shared hands a user's live session back on a repeated login instead
	// of creating another one.
	Shared bool `mapstructure:"shared" yaml:"shared" json:"shared" default:"true"`

	// Secret signs session tokens (HS256). When empty a random key is
	// generated at boot, so tokens do not survive a restart.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty" json:"secret,omitempty" validate:"omitempty,min=32"`
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.File == "" {
		c.File = DefaultFile
	}
}
