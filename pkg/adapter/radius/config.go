package radius

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dapper/pkg/access"
)

// DefaultPort is the IANA RADIUS authentication port.
const DefaultPort = 1812

// User lookup keys, tried in configured order against User-Name.
const (
	KeyUsername = "username"
	KeyEmail    = "email"
	KeyID       = "id"
)

// DefaultKeys is the lookup order used when none is configured.
var DefaultKeys = []string{KeyUsername, KeyEmail, KeyID}

// Config holds the RADIUS server settings.
type Config struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled" default:"false"`
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" json:"bind_address,omitempty"`

	// Port is the UDP port. 0 listens on an ephemeral port.
	Port int `mapstructure:"port" yaml:"port" json:"port" default:"1812" validate:"min=0,max=65535"`

	// Secret is shared with every NAS client.
	Secret string `mapstructure:"secret" yaml:"secret" json:"secret,omitempty"`

	// Keys selects how User-Name is resolved to a user.
	Keys []string `mapstructure:"keys" yaml:"keys" json:"keys" default:"[\"username\",\"email\",\"id\"]" validate:"dive,oneof=username email id"`

	// MFARequired makes every RADIUS login carry a TOTP suffix.
	MFARequired bool `mapstructure:"mfa_required" yaml:"mfa_required" json:"mfa_required"`

	// ShutdownTimeout bounds how long Stop waits for in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout" default:"10s" validate:"min=0"`

	Access access.Config `mapstructure:"access" yaml:"access" json:"access"`
}

func (c *Config) applyDefaults() {
	keys := c.Keys
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	c.Keys = make([]string, len(keys))
	for i, k := range keys {
		c.Keys[i] = strings.ToLower(strings.TrimSpace(k))
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	for _, k := range c.Keys {
		switch k {
		case KeyUsername, KeyEmail, KeyID:
		default:
			return fmt.Errorf("unknown lookup key %q", k)
		}
	}
	return nil
}
