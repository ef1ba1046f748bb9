package ldap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dapper/internal/bytesize"
	"github.com/marmos91/dapper/pkg/access"
)

// Standard LDAP ports.
const (
	DefaultPort    = 389
	DefaultTLSPort = 636
)

// DefaultMaxMessageSize bounds a single LDAPMessage (1MB). Bind and search
// requests are tiny; anything larger is a broken or hostile client.
const DefaultMaxMessageSize = bytesize.MiB

// TimeoutsConfig groups the connection timeouts.
type TimeoutsConfig struct {
	// Idle closes a connection that sends nothing for this long. 0 disables.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" json:"idle" default:"5m" validate:"min=0"`

	// Write bounds writing one response. 0 disables.
	Write time.Duration `mapstructure:"write" yaml:"write" json:"write" default:"30s" validate:"min=0"`

	// Shutdown is how long Serve waits for connections to finish before
	// force-closing them.
	Shutdown time.Duration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown" default:"30s" validate:"min=0"`
}

// TLSConfig enables LDAPS. Cert and Key are PEM file paths or inline PEM.
type TLSConfig struct {
	Cert string `mapstructure:"cert" yaml:"cert" json:"cert,omitempty"`
	Key  string `mapstructure:"key" yaml:"key" json:"key,omitempty"`
}

// Enabled reports whether both halves of the key pair are configured.
func (c TLSConfig) Enabled() bool {
	return c.Cert != "" && c.Key != ""
}

// Load builds a server tls.Config from the configured key pair.
func (c TLSConfig) Load() (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)
	if isInlinePEM(c.Cert) {
		cert, err = tls.X509KeyPair([]byte(c.Cert), []byte(c.Key))
	} else {
		cert, err = tls.LoadX509KeyPair(c.Cert, c.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("load LDAP TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func isInlinePEM(s string) bool {
	return strings.Contains(s, "-----BEGIN")
}

// Config holds the LDAP server settings.
//
// A zero Port listens on an ephemeral port; the config loader fills in 389,
// or 636 when TLS is configured, before the adapter is built.
type Config struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled" default:"true"`
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" json:"bind_address,omitempty"`
	Port        int    `mapstructure:"port" yaml:"port" json:"port" validate:"min=0,max=65535"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls" json:"tls"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections" validate:"min=0"`

	// MaxMessageSize bounds one encoded LDAPMessage, e.g. "1MiB".
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size" json:"max_message_size" default:"1048576"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`

	// MetricsLogInterval logs the connection count periodically. 0 disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" json:"metrics_log_interval" validate:"min=0"`

	Access access.Config `mapstructure:"access" yaml:"access" json:"access"`
}

// ResolvePort returns the configured port, or the standard port for the
// transport when none is set.
func (c Config) ResolvePort() int {
	switch {
	case c.Port > 0:
		return c.Port
	case c.TLS.Enabled():
		return DefaultTLSPort
	default:
		return DefaultPort
	}
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.New("tls.cert and tls.key must be set together")
	}
	return nil
}
