package auth

import "time"

// Config selects and configures the authentication provider.
type Config struct {
	Provider string       `mapstructure:"provider" yaml:"provider" json:"provider" validate:"required,oneof=internal radius fallback-radius"`
	Radius   RadiusConfig `mapstructure:"radius" yaml:"radius" json:"radius"`
}

// RadiusConfig points the radius and fallback-radius providers at an
// upstream server.
type RadiusConfig struct {
	// Address is the upstream host:port.
	Address string `mapstructure:"address" yaml:"address" json:"address" validate:"omitempty,hostname_port"`
	Secret  string `mapstructure:"secret" yaml:"secret" json:"secret"`

	// NASIdentifier and NASIPAddress are sent when set.
	NASIdentifier string `mapstructure:"nasIdentifier" yaml:"nasIdentifier" json:"nasIdentifier,omitempty"`
	NASIPAddress  string `mapstructure:"nasIPAddress" yaml:"nasIPAddress" json:"nasIPAddress,omitempty" validate:"omitempty,ip"`

	// Timeout bounds one exchange including retransmissions.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"gte=0"`

	// Retry is the retransmission interval. Zero sends the request once.
	Retry time.Duration `mapstructure:"retry" yaml:"retry" json:"retry" validate:"gte=0"`
}

// Default upstream timings.
const (
	DefaultRadiusTimeout = 5 * time.Second
	DefaultRadiusRetry   = time.Second
)

// DefaultConfig uses the internal provider.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderInternal,
		Radius: RadiusConfig{
			Timeout: DefaultRadiusTimeout,
			Retry:   DefaultRadiusRetry,
		},
	}
}
