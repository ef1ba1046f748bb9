package api

import (
	"fmt"
	"time"

	"github.com/marmos91/dapper/pkg/access"
)

// DefaultPort is the API port used when none is configured.
const DefaultPort = 1389

// DefaultCookie names the session cookie.
const DefaultCookie = "dapper-session"

// Config configures the REST API HTTP server.
//
// A zero Port listens on an ephemeral port; the config loader fills in
// DefaultPort before the server is built.
type Config struct {
	// Enabled controls whether the API server is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled" default:"true"`

	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" json:"bind_address,omitempty"`
	Port        int    `mapstructure:"port" yaml:"port" json:"port" default:"1389" validate:"min=0,max=65535"`

	// Cookie is the name of the cookie carrying the session token.
	Cookie string `mapstructure:"cookie" yaml:"cookie" json:"cookie" default:"dapper-session"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout" default:"10s" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout" default:"10s" validate:"gte=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout" default:"60s" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout" default:"5s" validate:"gte=0"`

	Access access.Config `mapstructure:"access" yaml:"access" json:"access"`
}

// applyDefaults fills in zero values so servers built directly (e.g. in
// tests) behave like loaded ones. Port is left alone.
func (c *Config) applyDefaults() {
	if c.Cookie == "" {
		c.Cookie = DefaultCookie
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
